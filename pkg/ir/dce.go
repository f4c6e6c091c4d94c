package ir

// RemoveDeadSlots deletes every alloc of fn whose only users are stores into
// it, together with those stores. It returns the number of allocs removed.
// Values computed only to be stored into a dead slot stay in place.
func RemoveDeadSlots(fn *Func) int {
	entry := fn.Entry()
	if entry == nil {
		return 0
	}
	var dead []*Instruction
	for _, inst := range entry.Instrs {
		if inst.Op != OpAlloc {
			continue
		}
		onlyStored := true
		for _, u := range inst.UsedBy() {
			if u.Op != OpStore || u.Args[1] != Value(inst) || u.Args[0] == Value(inst) {
				onlyStored = false
				break
			}
		}
		if onlyStored {
			dead = append(dead, inst)
		}
	}
	for _, slot := range dead {
		for _, st := range append([]*Instruction(nil), slot.UsedBy()...) {
			st.Remove()
		}
		slot.Remove()
	}
	return len(dead)
}
