// Package models defines the domain types shared by the scoring,
// detection and review packages.
package models

// ClientType distinguishes individual and corporate client records.
type ClientType string

const (
	ClientTypeIndividual ClientType = "individual"
	ClientTypeCorporate  ClientType = "corporate"
)

// Valid reports whether the client type is one of the known values.
func (t ClientType) Valid() bool {
	return t == ClientTypeIndividual || t == ClientTypeCorporate
}

// Well-known record field names, as used by the client registry.
const (
	FieldNom           = "nom"
	FieldPrenom        = "pre"
	FieldNID           = "nid"
	FieldDateNaissance = "dna"
	FieldTelephone     = "tel"
	FieldEmail         = "email"
	FieldNomMere       = "nomMere"
	FieldRCCM          = "rccm"
	FieldRaisonSociale = "raisonSociale"
)

// ClientRecord is an immutable snapshot of a registry record at
// comparison time. Fields holds only the values present on the record;
// a missing key means the field is absent.
type ClientRecord struct {
	ID         string            `json:"id"`
	ClientType ClientType        `json:"client_type"`
	AgencyCode string            `json:"agency_code"`
	Fields     map[string]string `json:"fields"`
}

// Field returns the raw value of a named field and whether it is
// present and non-empty.
func (r *ClientRecord) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// BlockingField returns the name field used to derive the phonetic
// blocking key for a client type.
func BlockingField(t ClientType) string {
	if t == ClientTypeCorporate {
		return FieldRaisonSociale
	}
	return FieldNom
}
