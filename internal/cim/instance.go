package cim

import "fmt"

// Instance is one CIM instance returned by an enumeration.
type Instance struct {
	ClassName  string     `json:"class_name" yaml:"class_name"`
	Properties []Property `json:"properties" yaml:"properties"`
}

// Property is a single instance property. Valid is false for a NULL value.
type Property struct {
	Name    string   `json:"name" yaml:"name"`
	Type    string   `json:"type,omitempty" yaml:"type,omitempty"`
	Value   string   `json:"value,omitempty" yaml:"value,omitempty"`
	Values  []string `json:"values,omitempty" yaml:"values,omitempty"`
	IsArray bool     `json:"is_array,omitempty" yaml:"is_array,omitempty"`
	Valid   bool     `json:"valid" yaml:"valid"`
}

// Property returns the text value of the named property. Array values are
// comma-joined. It reports false for a missing property or a NULL value.
func (i *Instance) Property(name string) (string, bool) {
	if i == nil {
		return "", false
	}
	for _, p := range i.Properties {
		if p.Name == name {
			if !p.Valid {
				return "", false
			}
			return p.Value, true
		}
	}
	return "", false
}

// Error is a CIM status returned by the agent, either as an ERROR element
// or as a non-2xx HTTP response.
type Error struct {
	Code        int
	HTTPStatus  int
	Description string
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		if e.Description != "" {
			return fmt.Sprintf("cim: http status %d: %s", e.HTTPStatus, e.Description)
		}
		return fmt.Sprintf("cim: http status %d", e.HTTPStatus)
	}
	return fmt.Sprintf("cim: error %d (%s): %s", e.Code, statusName(e.Code), e.Description)
}

// statusName maps DSP0200 status codes to their symbolic names.
func statusName(code int) string {
	switch code {
	case 1:
		return "CIM_ERR_FAILED"
	case 2:
		return "CIM_ERR_ACCESS_DENIED"
	case 3:
		return "CIM_ERR_INVALID_NAMESPACE"
	case 4:
		return "CIM_ERR_INVALID_PARAMETER"
	case 5:
		return "CIM_ERR_INVALID_CLASS"
	case 6:
		return "CIM_ERR_NOT_FOUND"
	case 7:
		return "CIM_ERR_NOT_SUPPORTED"
	}
	return "CIM_ERR_UNKNOWN"
}
