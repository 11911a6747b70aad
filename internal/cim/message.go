package cim

import (
	"encoding/xml"
	"strings"
)

// CIM-XML (DSP0201) document types, limited to what EnumerateInstances
// needs.

type document struct {
	XMLName    xml.Name `xml:"CIM"`
	CIMVersion string   `xml:"CIMVERSION,attr"`
	DTDVersion string   `xml:"DTDVERSION,attr"`
	Message    message  `xml:"MESSAGE"`
}

type message struct {
	ID              string      `xml:"ID,attr"`
	ProtocolVersion string      `xml:"PROTOCOLVERSION,attr"`
	Request         *simpleReq  `xml:"SIMPLEREQ,omitempty"`
	Response        *simpleResp `xml:"SIMPLERSP,omitempty"`
}

type simpleReq struct {
	Call iMethodCall `xml:"IMETHODCALL"`
}

type iMethodCall struct {
	Name      string         `xml:"NAME,attr"`
	Namespace localNamespace `xml:"LOCALNAMESPACEPATH"`
	Params    []iParamValue  `xml:"IPARAMVALUE"`
}

type localNamespace struct {
	Parts []namespacePart `xml:"NAMESPACE"`
}

type namespacePart struct {
	Name string `xml:"NAME,attr"`
}

type iParamValue struct {
	Name      string     `xml:"NAME,attr"`
	ClassName *className `xml:"CLASSNAME,omitempty"`
	Value     *string    `xml:"VALUE,omitempty"`
}

type className struct {
	Name string `xml:"NAME,attr"`
}

type simpleResp struct {
	Response iMethodResponse `xml:"IMETHODRESPONSE"`
}

type iMethodResponse struct {
	Name        string        `xml:"NAME,attr"`
	Error       *errorElement `xml:"ERROR"`
	ReturnValue *iReturnValue `xml:"IRETURNVALUE"`
}

type errorElement struct {
	Code        int    `xml:"CODE,attr"`
	Description string `xml:"DESCRIPTION,attr"`
}

type iReturnValue struct {
	NamedInstances []namedInstance `xml:"VALUE.NAMEDINSTANCE"`
	Instances      []instanceXML   `xml:"INSTANCE"`
}

type namedInstance struct {
	Instance instanceXML `xml:"INSTANCE"`
}

type instanceXML struct {
	ClassName  string        `xml:"CLASSNAME,attr"`
	Properties []propertyXML `xml:"PROPERTY"`
	Arrays     []propertyArr `xml:"PROPERTY.ARRAY"`
	References []propertyRef `xml:"PROPERTY.REFERENCE"`
}

type propertyXML struct {
	Name  string  `xml:"NAME,attr"`
	Type  string  `xml:"TYPE,attr"`
	Value *string `xml:"VALUE"`
}

type propertyArr struct {
	Name   string     `xml:"NAME,attr"`
	Type   string     `xml:"TYPE,attr"`
	Values *valueList `xml:"VALUE.ARRAY"`
}

type valueList struct {
	Values []string `xml:"VALUE"`
}

type propertyRef struct {
	Name  string    `xml:"NAME,attr"`
	Value *refValue `xml:"VALUE.REFERENCE"`
}

type refValue struct {
	InstanceName *instanceName `xml:"INSTANCENAME"`
	InstancePath *struct {
		InstanceName instanceName `xml:"INSTANCENAME"`
	} `xml:"INSTANCEPATH"`
	LocalInstancePath *struct {
		InstanceName instanceName `xml:"INSTANCENAME"`
	} `xml:"LOCALINSTANCEPATH"`
}

type instanceName struct {
	ClassName   string       `xml:"CLASSNAME,attr"`
	KeyBindings []keyBinding `xml:"KEYBINDING"`
}

type keyBinding struct {
	Name  string `xml:"NAME,attr"`
	Value string `xml:"KEYVALUE"`
}

func (r *refValue) name() *instanceName {
	switch {
	case r == nil:
		return nil
	case r.InstanceName != nil:
		return r.InstanceName
	case r.InstancePath != nil:
		return &r.InstancePath.InstanceName
	case r.LocalInstancePath != nil:
		return &r.LocalInstancePath.InstanceName
	}
	return nil
}

// String renders an instance name as Class.key="value",...
func (n *instanceName) String() string {
	var b strings.Builder
	b.WriteString(n.ClassName)
	for i, kb := range n.KeyBindings {
		if i == 0 {
			b.WriteByte('.')
		} else {
			b.WriteByte(',')
		}
		b.WriteString(kb.Name)
		b.WriteString(`="`)
		b.WriteString(kb.Value)
		b.WriteByte('"')
	}
	return b.String()
}

func enumerateInstancesRequest(id, namespace, class string) document {
	var ns localNamespace
	for _, part := range strings.Split(strings.Trim(namespace, "/"), "/") {
		if part != "" {
			ns.Parts = append(ns.Parts, namespacePart{Name: part})
		}
	}
	return document{
		CIMVersion: "2.0",
		DTDVersion: "2.0",
		Message: message{
			ID:              id,
			ProtocolVersion: "1.0",
			Request: &simpleReq{
				Call: iMethodCall{
					Name:      methodEnumerateInstances,
					Namespace: ns,
					Params: []iParamValue{
						{Name: "ClassName", ClassName: &className{Name: class}},
						boolParam("DeepInheritance", true),
						boolParam("LocalOnly", false),
						boolParam("IncludeQualifiers", false),
						boolParam("IncludeClassOrigin", false),
					},
				},
			},
		},
	}
}

func boolParam(name string, v bool) iParamValue {
	s := "FALSE"
	if v {
		s = "TRUE"
	}
	return iParamValue{Name: name, Value: &s}
}

func (x instanceXML) toInstance() Instance {
	inst := Instance{ClassName: x.ClassName}
	for _, p := range x.Properties {
		prop := Property{Name: p.Name, Type: p.Type}
		if p.Value != nil {
			prop.Value = *p.Value
			prop.Valid = true
		}
		inst.Properties = append(inst.Properties, prop)
	}
	for _, p := range x.Arrays {
		prop := Property{Name: p.Name, Type: p.Type, IsArray: true}
		if p.Values != nil {
			prop.Values = p.Values.Values
			prop.Value = strings.Join(p.Values.Values, ",")
			prop.Valid = true
		}
		inst.Properties = append(inst.Properties, prop)
	}
	for _, p := range x.References {
		prop := Property{Name: p.Name, Type: "reference"}
		if n := p.Value.name(); n != nil {
			prop.Value = n.String()
			prop.Valid = true
		}
		inst.Properties = append(inst.Properties, prop)
	}
	return inst
}
