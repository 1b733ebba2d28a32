// Package asyncapi builds an AsyncAPI 2.4.0 description of the registered
// operations and renders a browser viewer for it.
package asyncapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"
	"github.com/invopop/jsonschema"

	"github.com/luciancaetano/wsrouter"
)

// Version is the AsyncAPI specification version of generated documents.
const Version = "2.4.0"

const (
	contentType      = "application/json"
	refSchemas       = "#/components/schemas/"
	refMessages      = "#/components/messages/"
	replySuffix      = "_reply"
	defaultChannel   = "/"
	publishOpID      = "sendMessage"
	subscribeOpID    = "processMessage"
	publishSummary   = "The API user can send a given message to the server."
	subscribeSummary = "The API user can receive a given message from the server."
)

// ErrInvalidVersion is returned when Info.Version is not a semantic version.
var ErrInvalidVersion = errors.New("invalid api version")

// Info describes the API.
type Info struct {
	Title          string   `json:"title"`
	Version        string   `json:"version"`
	Description    string   `json:"description"`
	TermsOfService string   `json:"termsOfService,omitempty"`
	Contact        *Contact `json:"contact,omitempty"`
	License        *License `json:"license,omitempty"`
}

type Contact struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Email string `json:"email"`
}

type License struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Document is an AsyncAPI document.
type Document struct {
	AsyncAPI           string             `json:"asyncapi"`
	Info               Info               `json:"info"`
	Channels           map[string]Channel `json:"channels"`
	Components         Components         `json:"components"`
	DefaultContentType string             `json:"defaultContentType"`
}

type Channel struct {
	Publish   *Operation `json:"publish,omitempty"`
	Subscribe *Operation `json:"subscribe,omitempty"`
}

type Operation struct {
	OperationID string `json:"operationId"`
	Summary     string `json:"summary"`
	Message     OneOf  `json:"message"`
}

type OneOf struct {
	OneOf []Ref `json:"oneOf"`
}

type Ref struct {
	Ref string `json:"$ref"`
}

type Components struct {
	Schemas  map[string]*jsonschema.Schema `json:"schemas"`
	Messages map[string]Message            `json:"messages"`
}

type Message struct {
	MessageID   string `json:"messageId"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	ContentType string `json:"contentType"`
	Payload     *Ref   `json:"payload,omitempty"`
	Tags        []Tag  `json:"tags,omitempty"`
}

type Tag struct {
	Name string `json:"name"`
}

// Build creates the document for ops. Send operations are published by the
// client; their replies (keyed "<type>_reply") and recv operations are
// subscribed to.
func Build(info Info, ops []wsrouter.Descriptor) (*Document, error) {
	if _, err := semver.NewVersion(info.Version); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidVersion, info.Version, err)
	}

	doc := &Document{
		AsyncAPI: Version,
		Info:     info,
		Components: Components{
			Schemas:  make(map[string]*jsonschema.Schema),
			Messages: make(map[string]Message),
		},
		DefaultContentType: contentType,
	}

	publish := make([]Ref, 0, len(ops))
	subscribe := make([]Ref, 0, len(ops))

	for _, op := range ops {
		if op.Direction == wsrouter.DirectionSend {
			key := op.Type
			doc.Components.Messages[key] = message(key, op, doc.addSchema(key, op.Input))
			publish = append(publish, Ref{Ref: refMessages + key})
		}

		if op.Replies() || op.Direction == wsrouter.DirectionRecv {
			key := op.Type
			if op.Direction == wsrouter.DirectionSend {
				key += replySuffix
			}
			schema := op.Output
			if op.Direction == wsrouter.DirectionRecv && schema == nil {
				schema = op.Input
			}
			doc.Components.Messages[key] = message(key, op, doc.addSchema(key, schema))
			subscribe = append(subscribe, Ref{Ref: refMessages + key})
		}
	}

	doc.Channels = map[string]Channel{
		defaultChannel: {
			Publish: &Operation{
				OperationID: publishOpID,
				Summary:     publishSummary,
				Message:     OneOf{OneOf: publish},
			},
			Subscribe: &Operation{
				OperationID: subscribeOpID,
				Summary:     subscribeSummary,
				Message:     OneOf{OneOf: subscribe},
			},
		},
	}
	return doc, nil
}

// JSON encodes the document.
func (d *Document) JSON() ([]byte, error) {
	return json.Marshal(d)
}

func (d *Document) addSchema(key string, s wsrouter.Schema) *Ref {
	if s == nil {
		return nil
	}
	js := s.JSONSchema()
	if js == nil {
		return nil
	}
	d.Components.Schemas[key] = js
	return &Ref{Ref: refSchemas + key}
}

func message(key string, op wsrouter.Descriptor, payload *Ref) Message {
	msg := Message{
		MessageID:   key,
		Name:        op.Name,
		Title:       title(op.Name),
		Summary:     op.Summary,
		Description: op.Description,
		ContentType: contentType,
		Payload:     payload,
	}
	for _, t := range op.Tags {
		msg.Tags = append(msg.Tags, Tag{Name: t})
	}
	return msg
}

// title turns "send_alert" into "Send Alert".
func title(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
