package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
	"github.com/cuongbtq/audio-pipeline/internal/provider"
	"github.com/go-resty/resty/v2"
)

const (
	crmName           = "crm"
	defaultAPIVersion = "2021-07-28"
)

// ErrContactNotFound is returned when no contact matches an email
var ErrContactNotFound = errors.New("crm contact not found")

// ClientConfig configures the CRM REST client
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	LocationID string
	APIVersion string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// CustomField is a custom field definition on the CRM account
type CustomField struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FieldKey string `json:"fieldKey"`
	DataType string `json:"dataType"`
}

// FieldValue is one custom field write. Exactly one of ID and Key is set.
type FieldValue struct {
	ID    string `json:"id,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"field_value"`
}

// Message is an outbound conversation message
type Message struct {
	Channel     string   `json:"type"`
	ContactID   string   `json:"contactId"`
	Text        string   `json:"message,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// MessageResult identifies a sent message
type MessageResult struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// UpdatedField is a custom field value echoed back after a contact update
type UpdatedField struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// Client is a thin client over the CRM REST API.
// Every error it returns wraps domain.ErrCrmPropagation.
type Client struct {
	http       *resty.Client
	locationID string
}

// NewClient creates a new CRM client
func NewClient(cfg ClientConfig) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	client := provider.NewClient(provider.ClientConfig{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
		RetryWait:  cfg.RetryWait,
	}).
		SetAuthToken(cfg.APIKey).
		SetHeader("Version", cfg.APIVersion).
		SetHeader("Accept", "application/json")

	return &Client{http: client, locationID: cfg.LocationID}
}

// FindContactByEmail returns the id of the contact with the given email
func (c *Client) FindContactByEmail(ctx context.Context, email string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"locationId": c.locationID,
			"email":      email,
		}).
		Get("/contacts/search/duplicate")
	if err := checkResponse("search contact", resp, err); err != nil {
		return "", err
	}

	var body struct {
		Contact *struct {
			ID string `json:"id"`
		} `json:"contact"`
	}
	if err := decode("search contact", resp, &body); err != nil {
		return "", err
	}
	if body.Contact == nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCrmPropagation, ErrContactNotFound)
	}
	if body.Contact.ID == "" {
		return "", schemaError("search contact", "contact.id is empty")
	}
	return body.Contact.ID, nil
}

// ListCustomFields returns every custom field definition on the account
func (c *Client) ListCustomFields(ctx context.Context) ([]CustomField, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("location_id", c.locationID).
		Get("/locations/{location_id}/customFields")
	if err := checkResponse("list custom fields", resp, err); err != nil {
		return nil, err
	}

	var body struct {
		CustomFields []CustomField `json:"customFields"`
	}
	if err := decode("list custom fields", resp, &body); err != nil {
		return nil, err
	}
	if body.CustomFields == nil {
		return nil, schemaError("list custom fields", "customFields is missing")
	}
	for i, f := range body.CustomFields {
		if f.ID == "" {
			return nil, schemaError("list custom fields", fmt.Sprintf("customFields[%d].id is empty", i))
		}
	}
	return body.CustomFields, nil
}

// UpdateContactFields writes custom field values on a contact and returns
// the custom fields the CRM echoed back, which may be nil.
func (c *Client) UpdateContactFields(ctx context.Context, contactID string, values []FieldValue) ([]UpdatedField, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("contact_id", contactID).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"customFields": values}).
		Put("/contacts/{contact_id}")
	if err := checkResponse("update contact", resp, err); err != nil {
		return nil, err
	}

	var body struct {
		Contact *struct {
			ID           string         `json:"id"`
			CustomFields []UpdatedField `json:"customFields"`
		} `json:"contact"`
	}
	if err := decode("update contact", resp, &body); err != nil {
		return nil, err
	}
	if body.Contact == nil {
		return nil, schemaError("update contact", "contact is missing")
	}
	return body.Contact.CustomFields, nil
}

// SendMessage posts a message into the contact's conversation
func (c *Client) SendMessage(ctx context.Context, msg Message) (*MessageResult, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post("/conversations/messages")
	if err := checkResponse("send message", resp, err); err != nil {
		return nil, err
	}

	var result MessageResult
	if err := decode("send message", resp, &result); err != nil {
		return nil, err
	}
	if result.MessageID == "" {
		return nil, schemaError("send message", "messageId is empty")
	}
	return &result, nil
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrCrmPropagation, op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: %s: %w", domain.ErrCrmPropagation, op, provider.NewError(crmName, resp))
	}
	return nil
}

func decode(op string, resp *resty.Response, v any) error {
	if err := json.Unmarshal(resp.Body(), v); err != nil {
		return fmt.Errorf("%w: %w: %s: %w", domain.ErrCrmPropagation, domain.ErrSchemaMismatch, op, err)
	}
	return nil
}

func schemaError(op, detail string) error {
	return fmt.Errorf("%w: %w: %s: %s", domain.ErrCrmPropagation, domain.ErrSchemaMismatch, op, detail)
}
