package app

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks a CLI operation that may mutate the catalog or storage.
// Operations are created in memory with ID=0. Only mutating commands
// persist them (giving them an auto-increment ID from the catalog).
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the catalog.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed. It returns err so callers can write
// `return a.op.Fail(err)`.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = StatusError
	}
	return err
}
