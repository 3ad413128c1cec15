package validator

// Validator validates annotated structs and returns a structured error when
// one or more fields are invalid.
type Validator interface {
	Validate(data any) error
}
