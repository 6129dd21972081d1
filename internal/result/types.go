package result

// ErrorKind classifies why a row carries no usable numbers. Every failed
// row names a specific kind; "generic error" is not in the vocabulary.
type ErrorKind string

const (
	ErrNone        ErrorKind = ""
	ErrSetupFailed ErrorKind = "SETUP_FAILED"
	ErrRowNotFound ErrorKind = "ROW_NOT_FOUND"
	ErrNonNumeric  ErrorKind = "NON_NUMERIC"
	ErrRunFailed   ErrorKind = "RUN_FAILED"
	ErrUnsupported ErrorKind = "UNSUPPORTED"
)

// Metric is one named numeric field of a row. Undefined metrics are
// written blank, never as zero: a blank cell means "no value exists",
// which downstream consumers must be able to tell apart from 0.
type Metric struct {
	Name    string
	Value   float64
	Defined bool
}

// Row is the durable output unit: exactly one per repeat × quantity, even
// on total failure. Failed rows keep their place with blank numerics and
// a populated ErrorKind.
type Row struct {
	Repeat          int
	Mode            string
	WindowOrTimeout string
	Quantity        string
	Family          string
	Metrics         []Metric
	OK              bool
	ErrorKind       ErrorKind
	RawRef          string
}

// Metric returns the named metric, or an undefined Metric when the row
// does not carry it.
func (r *Row) Metric(name string) Metric {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m
		}
	}
	return Metric{Name: name}
}
