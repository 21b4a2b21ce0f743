package entities

// StatusKey names a flag in the process-wide status register
type StatusKey string

const (
	KeyNeedValidation  StatusKey = "NEED_VALIDATION"
	KeyHumanAbandon    StatusKey = "HUMAN_ABANDON"
	KeyHumanInfeasible StatusKey = "HUMAN_INFEASIBLE"
	KeyLoadComplete    StatusKey = "WORKARENA_LOAD_COMPLETE"
)

// Writer identifies the party allowed to set a status key
type Writer string

const (
	WriterValidateButton   Writer = "validate_button"
	WriterGiveUpButton     Writer = "give_up_button"
	WriterInfeasibleSubmit Writer = "infeasible_submit"
	WriterFrameLoadHook    Writer = "frame_load_hook"
)

var designatedWriters = map[StatusKey]Writer{
	KeyNeedValidation:  WriterValidateButton,
	KeyHumanAbandon:    WriterGiveUpButton,
	KeyHumanInfeasible: WriterInfeasibleSubmit,
	KeyLoadComplete:    WriterFrameLoadHook,
}

// DesignatedWriter - returns the only writer allowed to set the key
func (k StatusKey) DesignatedWriter() (Writer, bool) {
	w, ok := designatedWriters[k]
	return w, ok
}

// Known - reports whether the key is part of the register
func (k StatusKey) Known() bool {
	_, ok := designatedWriters[k]
	return ok
}

// DecisionKeys - keys set by a terminal human decision on the console
func DecisionKeys() []StatusKey {
	return []StatusKey{KeyNeedValidation, KeyHumanAbandon, KeyHumanInfeasible}
}
