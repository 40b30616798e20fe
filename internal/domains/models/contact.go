package models

// ContactRole distinguishes the roles a contact plays on a domain. Values
// match the wire protocol's contact types so associations round-trip
// through registry info results unchanged.
type ContactRole string

const (
	ContactRoleRegistrant ContactRole = "registrant"
	ContactRoleAdmin      ContactRole = "admin"
	ContactRoleTechnical  ContactRole = "tech"
	ContactRoleSecurity   ContactRole = "security"
)

// Disclosure records which fields of a contact the registry may publish.
// Set when the contact is provisioned; the registry does not echo it back
// on domain info, so the aggregate is its system of record.
type Disclosure struct {
	Name  bool `json:"name"`
	Email bool `json:"email"`
	Phone bool `json:"phone"`
}

// Contact associates a registry contact object with its role on the domain
// and the disclosure policy it was provisioned under.
type Contact struct {
	RegistryID string      `json:"registry_id"`
	Role       ContactRole `json:"role"`
	Disclose   Disclosure  `json:"disclose"`
}
