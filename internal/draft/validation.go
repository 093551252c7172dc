package draft

// Field names the form field a validation message belongs to.
type Field string

const (
	FieldName        Field = "project_name"
	FieldCode        Field = "project_code"
	FieldSupervisors Field = "supervisors"
)

// ValidationError is a rule violation tied to a single field. It is meant
// to be shown next to that field.
type ValidationError struct {
	Field   Field
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation is the outcome of a setter: the value is always stored, and
// Valid says whether it passed. Message is shown either way.
type Validation struct {
	Stored  bool
	Valid   bool
	Field   Field
	Message string
}

// Err returns the failure as a *ValidationError, or nil when valid.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Field: v.Field, Message: v.Message}
}

func valid(field Field, message string) Validation {
	return Validation{Stored: true, Valid: true, Field: field, Message: message}
}

func invalid(field Field, message string) Validation {
	return Validation{Stored: true, Field: field, Message: message}
}
