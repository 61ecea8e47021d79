// Package presenter holds the view state of the authentication code field
// independently of whatever renders it (HTML, terminal).
package presenter

import (
	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
)

// URIOpener hands a URI to whatever application is registered to handle it.
// Implementations own all failure handling; nothing is reported back.
type URIOpener interface {
	OpenURI(uri string)
}

// URIOpenerFunc adapts a function to the URIOpener interface.
type URIOpenerFunc func(uri string)

// OpenURI calls f(uri).
func (f URIOpenerFunc) OpenURI(uri string) {
	f(uri)
}

var discardOpener = URIOpenerFunc(func(string) {})

// CodeField presents one authentication code field. It is owned by a single
// view for the lifetime of that field and is not safe for concurrent use.
type CodeField struct {
	field         domain.CodeField
	opener        URIOpener
	groupedSecret []string
	detailsShown  bool
}

// NewCodeField activates a presenter for field. The secret is grouped once,
// here; details start hidden. A nil opener discards OpenKeyURI requests.
func NewCodeField(field domain.CodeField, opener URIOpener) *CodeField {
	if opener == nil {
		opener = discardOpener
	}
	return &CodeField{
		field:         field,
		opener:        opener,
		groupedSecret: GroupSecret(field.Secret),
	}
}

// Field returns the descriptor the presenter was activated with.
func (p *CodeField) Field() domain.CodeField {
	return p.field
}

// GroupedSecret returns the secret split into groups of at most four
// characters, or nil if the field exposes no secret.
func (p *CodeField) GroupedSecret() []string {
	return p.groupedSecret
}

// KeyURI returns the otpauth:// URI of the field, possibly empty.
func (p *CodeField) KeyURI() string {
	return p.field.KeyURI
}

// DetailsShown reports whether the raw key and TOTP configuration should be
// rendered. It has no effect on rendering if no secret is exposed.
func (p *CodeField) DetailsShown() bool {
	return p.detailsShown
}

// ShowDetails shows the raw details of the key and TOTP configuration.
func (p *CodeField) ShowDetails() {
	p.detailsShown = true
}

// HideDetails hides the raw details of the key and TOTP configuration.
func (p *CodeField) HideDetails() {
	p.detailsShown = false
}

// OpenKeyURI asks the opener to launch the key URI, unmodified, so that a
// locally installed authenticator can import the key.
func (p *CodeField) OpenKeyURI() {
	p.opener.OpenURI(p.field.KeyURI)
}
