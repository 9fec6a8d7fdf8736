package message

// Group is a read-only view over a repeating-group's member fields,
// extracted by counting tag without validating per-entry structure. Spec
// §3 keeps repeating groups "out of scope beyond preserving order" — this
// type exists only so a resend/gap-fill round trip doesn't have to
// understand group semantics to avoid corrupting one.
type Group struct {
	CountTag int
	Count    int
	Fields   []Field // the raw member fields, in wire order, verbatim
}

// ExtractGroup scans msg's fields for countTag and returns the fields that
// follow it as the group's members. The caller supplies the tag that
// starts each repeating entry (firstEntryTag); a new entry begins at each
// occurrence of it. Nothing is collected if the field right after countTag
// is not firstEntryTag, and collection stops at a firstEntryTag that would
// start one entry more than the declared count. Member tags are not known
// here, so the last entry takes every following field up to the end of
// the message.
func ExtractGroup(msg *Message, countTag int, firstEntryTag int) (Group, bool) {
	idx := -1
	for i, f := range msg.fields {
		if f.Tag == countTag {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Group{}, false
	}
	count, err := ValidateInt(msg.fields[idx].Value)
	if err != nil {
		return Group{}, false
	}

	var members []Field
	entries := 0
	for i := idx + 1; i < len(msg.fields); i++ {
		f := msg.fields[i]
		if f.Tag == firstEntryTag {
			if entries == int(count) {
				break
			}
			entries++
		}
		if entries == 0 {
			break
		}
		members = append(members, f)
	}

	return Group{CountTag: countTag, Count: int(count), Fields: members}, true
}
