// Package forms holds the care profile a conversation fills in.
package forms

import "fmt"

type Field string

const (
	FieldFullName Field = "fullName"
	FieldEmail    Field = "email"
	FieldPhone    Field = "phone"
	FieldAge      Field = "age"
	FieldPhysical Field = "physical"
	FieldMental   Field = "mental"
)

// Fields lists every form field in the order they are asked for.
var Fields = []Field{FieldFullName, FieldEmail, FieldPhone, FieldAge, FieldPhysical, FieldMental}

func ParseField(name string) (Field, bool) {
	for _, field := range Fields {
		if string(field) == name {
			return field, true
		}
	}
	return "", false
}

// Form is a value type, copies are independent snapshots.
type Form struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Age      string `json:"age"`
	Physical string `json:"physical"`
	Mental   string `json:"mental"`
}

func (f Form) Get(field Field) string {
	switch field {
	case FieldFullName:
		return f.FullName
	case FieldEmail:
		return f.Email
	case FieldPhone:
		return f.Phone
	case FieldAge:
		return f.Age
	case FieldPhysical:
		return f.Physical
	case FieldMental:
		return f.Mental
	}
	return ""
}

// Set updates the named field. Unknown names leave the form untouched.
func (f *Form) Set(name, value string) error {
	field, ok := ParseField(name)
	if !ok {
		return fmt.Errorf("unknown form field %q", name)
	}

	switch field {
	case FieldFullName:
		f.FullName = value
	case FieldEmail:
		f.Email = value
	case FieldPhone:
		f.Phone = value
	case FieldAge:
		f.Age = value
	case FieldPhysical:
		f.Physical = value
	case FieldMental:
		f.Mental = value
	}
	return nil
}

func (f Form) Filled() []Field {
	var filled []Field
	for _, field := range Fields {
		if f.Get(field) != "" {
			filled = append(filled, field)
		}
	}
	return filled
}

func (f Form) Missing() []Field {
	var missing []Field
	for _, field := range Fields {
		if f.Get(field) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
