// Package gateway talks to an Evolution-style messaging gateway over REST.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	waLog "go.mau.fi/whatsmeow/util/log"

	"syncnexus/internal/infra/config"
	"syncnexus/internal/infra/fault"
	"syncnexus/internal/utils/jid"
	"syncnexus/internal/utils/retry"
)

const maxBodyBytes = 8 << 20

// Group is the raw shape of one group returned by fetchAllGroups.
type Group struct {
	ID          string
	Subject     string
	Name        string
	Title       string
	Description string
	Size        int
	// Participants is the number of participants listed inline, if any.
	Participants int
}

// Participant is one member of a group.
type Participant struct {
	ID       string
	PushName string
	Notify   string
}

// HistoryMessage is the raw shape of one stored chat message.
type HistoryMessage struct {
	ID          string
	Participant string
	RemoteJID   string
	FromMe      bool
	PushName    string
	// Body is message.conversation, falling back to message.extendedTextMessage.text.
	Body      string
	Timestamp int64
}

// Client is a gateway REST client. Reads are retried on transport failure;
// sends are attempted exactly once.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	readAttempts int
	log          waLog.Logger
}

// NewClient creates a Client from gateway configuration.
func NewClient(cfg config.GatewayConfig, log waLog.Logger) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		apiKey:       cfg.APIKey,
		http:         &http.Client{Timeout: timeout},
		readAttempts: cfg.ReadAttempts,
		log:          log.Sub("Gateway"),
	}
}

// Configured reports whether URL and API key are present.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

func (c *Client) checkConfig(op string) error {
	if !c.Configured() {
		return fault.Newf(fault.KindConfig, op, "gateway url or api key missing")
	}
	return nil
}

// FetchGroups lists all groups visible to an instance.
func (c *Client) FetchGroups(ctx context.Context, instance string) ([]Group, error) {
	const op = "gateway.fetchGroups"
	if err := c.checkConfig(op); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/group/fetchAllGroups/%s?getParticipants=false", c.baseURL, url.PathEscape(instance))

	items, err := c.getCollection(ctx, op, endpoint, "groups")
	if err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(items))
	for _, item := range items {
		id := item.Get("id").String()
		if id == "" {
			continue
		}
		groups = append(groups, Group{
			ID:           id,
			Subject:      strings.TrimSpace(item.Get("subject").String()),
			Name:         strings.TrimSpace(item.Get("name").String()),
			Title:        strings.TrimSpace(item.Get("title").String()),
			Description:  item.Get("desc").String(),
			Size:         int(item.Get("size").Int()),
			Participants: len(item.Get("participants").Array()),
		})
	}
	return groups, nil
}

// FetchParticipants lists the members of a group.
func (c *Client) FetchParticipants(ctx context.Context, instance, groupJID string) ([]Participant, error) {
	const op = "gateway.fetchParticipants"
	if err := c.checkConfig(op); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/group/participants/%s?groupJid=%s",
		c.baseURL, url.PathEscape(instance), url.QueryEscape(groupJID))

	items, err := c.getCollection(ctx, op, endpoint, "participants")
	if err != nil {
		return nil, err
	}

	participants := make([]Participant, 0, len(items))
	for _, item := range items {
		id := item.Get("id").String()
		if id == "" {
			continue
		}
		participants = append(participants, Participant{
			ID:       id,
			PushName: item.Get("pushName").String(),
			Notify:   item.Get("notify").String(),
		})
	}
	return participants, nil
}

// FetchHistory returns up to limit stored messages of a chat.
func (c *Client) FetchHistory(ctx context.Context, instance, chatJID string, limit int) ([]HistoryMessage, error) {
	const op = "gateway.fetchHistory"
	if err := c.checkConfig(op); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("where[key.remoteJid]", chatJID)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/chat/findMessages/%s?%s", c.baseURL, url.PathEscape(instance), q.Encode())

	items, err := c.getCollection(ctx, op, endpoint, "messages.records", "records", "messages")
	if err != nil {
		return nil, err
	}

	messages := make([]HistoryMessage, 0, len(items))
	for _, item := range items {
		body := item.Get("message.conversation").String()
		if body == "" {
			body = item.Get("message.extendedTextMessage.text").String()
		}
		messages = append(messages, HistoryMessage{
			ID:          item.Get("key.id").String(),
			Participant: item.Get("key.participant").String(),
			RemoteJID:   item.Get("key.remoteJid").String(),
			FromMe:      item.Get("key.fromMe").Bool(),
			PushName:    item.Get("pushName").String(),
			Body:        body,
			Timestamp:   item.Get("messageTimestamp").Int(),
		})
	}
	return messages, nil
}

// SendText sends a text message. It returns true only when the gateway
// acknowledged the send with a 2xx status.
func (c *Client) SendText(ctx context.Context, instance, recipient, text string) (bool, error) {
	const op = "gateway.sendText"
	if err := c.checkConfig(op); err != nil {
		return false, err
	}
	payload, err := json.Marshal(map[string]string{"number": recipient, "text": text})
	if err != nil {
		return false, fmt.Errorf("failed to encode send payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, url.PathEscape(instance))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fault.Wrap(fault.KindTransport, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fault.Wrap(fault.KindTransport, op, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warnf("Send to %s rejected with status %d", recipient, resp.StatusCode)
		return false, nil
	}
	return true, nil
}

// Pairing is the link material an instance returns while it is not connected.
type Pairing struct {
	// Code is the QR payload to be scanned from the phone.
	Code string
	// PairingCode is the alternative numeric code, when the gateway offers one.
	PairingCode string
	// State is the connection state reported when no pairing is needed.
	State string
}

// Connect asks the gateway to (re)connect an instance. An already connected
// instance reports its state and no code.
func (c *Client) Connect(ctx context.Context, instance string) (*Pairing, error) {
	const op = "gateway.connect"
	if err := c.checkConfig(op); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/instance/connect/%s", c.baseURL, url.PathEscape(instance))

	body, err := c.get(ctx, op, endpoint)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fault.Newf(fault.KindGatewayPayload, op, "expected an object, got %s", describe(doc))
	}
	p := &Pairing{
		Code:        doc.Get("code").String(),
		PairingCode: doc.Get("pairingCode").String(),
		State:       jid.FirstNonEmpty(doc.Get("instance.state").String(), doc.Get("state").String()),
	}
	if p.Code == "" && p.State == "" {
		if msg := errorMessage(doc); msg != "" {
			return nil, fault.Newf(fault.KindGatewayPayload, op, "gateway error: %s", msg)
		}
	}
	return p, nil
}

// getCollection performs a GET and returns the array payload. A bare array
// is success; so is an object carrying an array under one of envelopeKeys.
// Anything else is a gateway payload error, never an empty result.
func (c *Client) getCollection(ctx context.Context, op, endpoint string, envelopeKeys ...string) ([]gjson.Result, error) {
	cfg := retry.Reads(c.readAttempts, func(err error) bool {
		return fault.Is(err, fault.KindTransport)
	})

	body, err := retry.Do(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, op, endpoint)
	})
	if err != nil {
		return nil, err
	}
	return classify(op, body, envelopeKeys...)
}

func (c *Client) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, op, err)
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// An error-shaped JSON body is the gateway speaking; report it as such.
		if msg := errorMessage(gjson.ParseBytes(body)); msg != "" && resp.StatusCode < 500 {
			return nil, fault.Newf(fault.KindGatewayPayload, op, "gateway error (status %d): %s", resp.StatusCode, msg)
		}
		return nil, fault.Newf(fault.KindTransport, op, "unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func classify(op string, body []byte, envelopeKeys ...string) ([]gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, fault.Newf(fault.KindGatewayPayload, op, "response is not JSON")
	}
	doc := gjson.ParseBytes(body)
	if doc.IsArray() {
		return doc.Array(), nil
	}
	if doc.IsObject() {
		for _, key := range envelopeKeys {
			if v := doc.Get(key); v.IsArray() {
				return v.Array(), nil
			}
		}
		if msg := errorMessage(doc); msg != "" {
			return nil, fault.Newf(fault.KindGatewayPayload, op, "gateway error: %s", msg)
		}
	}
	return nil, fault.Newf(fault.KindGatewayPayload, op, "expected a collection, got %s", describe(doc))
}

// errorMessage extracts the human-readable part of an error-shaped payload.
func errorMessage(doc gjson.Result) string {
	for _, path := range []string{"response.message", "error.message", "message", "error"} {
		v := doc.Get(path)
		switch {
		case v.Type == gjson.String && v.String() != "":
			return v.String()
		case v.IsArray() && len(v.Array()) > 0:
			parts := make([]string, 0, len(v.Array()))
			for _, p := range v.Array() {
				parts = append(parts, p.String())
			}
			return strings.Join(parts, "; ")
		}
	}
	return ""
}

func describe(doc gjson.Result) string {
	switch {
	case doc.IsObject():
		return "object"
	case doc.Type == gjson.Null:
		return "null"
	default:
		return doc.Type.String()
	}
}
