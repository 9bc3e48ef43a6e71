package prompt

const redacted = "[redacted]"

// Text holds generated prompt content. Every formatting and encoding path
// renders it as a placeholder; Reveal is the only way to read it.
type Text struct {
	s string
}

func (t Text) Reveal() string {
	return t.s
}

func (t Text) Empty() bool {
	return t.s == ""
}

func (t Text) Len() int {
	return len(t.s)
}

func (Text) String() string {
	return redacted
}

func (Text) GoString() string {
	return redacted
}

func (Text) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (Text) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
