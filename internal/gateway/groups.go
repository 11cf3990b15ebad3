package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GroupInfo is one WhatsApp group visible to the instance.
type GroupInfo struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Size    int    `json:"size"`
	Owner   string `json:"owner,omitempty"`
}

// GroupParticipant is one member of a group. ID is the participant's JID;
// newer gateway versions report an opaque LID with the real phone number
// in PhoneNumber.
type GroupParticipant struct {
	ID          string `json:"id"`
	LID         string `json:"lid,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Admin       string `json:"admin,omitempty"`
}

type participantsResponse struct {
	Participants []GroupParticipant `json:"participants"`
}

// GroupMessage is one message from a group's history.
type GroupMessage struct {
	Key struct {
		RemoteJID      string `json:"remoteJid"`
		FromMe         bool   `json:"fromMe"`
		ID             string `json:"id"`
		Participant    string `json:"participant,omitempty"`
		ParticipantLID string `json:"participantLid,omitempty"`
	} `json:"key"`
	MessageType      string `json:"messageType"`
	MessageTimestamp int64  `json:"messageTimestamp"`
	PushName         string `json:"pushName,omitempty"`
}

type findMessagesResponse struct {
	Messages struct {
		Total   int            `json:"total"`
		Records []GroupMessage `json:"records"`
	} `json:"messages"`
}

// FetchGroups lists the groups the instance participates in.
func (c *Client) FetchGroups(ctx context.Context, instance string) ([]GroupInfo, error) {
	query := url.Values{}
	query.Set("getParticipants", "false")
	var out []GroupInfo
	if err := c.do(ctx, "fetch groups", http.MethodGet, "/group/fetchAllGroups/"+url.PathEscape(instance), instance, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchParticipants lists the members of one group.
func (c *Client) FetchParticipants(ctx context.Context, instance, groupJID string) ([]GroupParticipant, error) {
	query := url.Values{}
	query.Set("groupJid", groupJID)
	var out participantsResponse
	if err := c.do(ctx, "fetch participants", http.MethodGet, "/group/participants/"+url.PathEscape(instance), instance, query, nil, &out); err != nil {
		return nil, err
	}
	return out.Participants, nil
}

// FindGroupMessages fetches the group's message history between from and
// to (inclusive bounds, gateway timestamps are unix seconds).
func (c *Client) FindGroupMessages(ctx context.Context, instance, groupJID string, from, to time.Time) ([]GroupMessage, error) {
	payload := map[string]interface{}{
		"where": map[string]interface{}{
			"key": map[string]interface{}{
				"remoteJid": groupJID,
			},
			"messageTimestamp": map[string]string{
				"gte": strconv.FormatInt(from.Unix(), 10),
				"lte": strconv.FormatInt(to.Unix(), 10),
			},
		},
	}
	var out findMessagesResponse
	if err := c.do(ctx, "find messages", http.MethodPost, "/chat/findMessages/"+url.PathEscape(instance), instance, nil, payload, &out); err != nil {
		return nil, err
	}
	return out.Messages.Records, nil
}

// CreateGroup creates a WhatsApp group with the given participant JIDs.
func (c *Client) CreateGroup(ctx context.Context, instance, subject string, participants []string) (*GroupInfo, error) {
	payload := map[string]interface{}{
		"subject":      subject,
		"participants": participants,
	}
	var out GroupInfo
	if err := c.do(ctx, "create group", http.MethodPost, "/group/create/"+url.PathEscape(instance), instance, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateParticipants adds, removes, promotes or demotes group members.
// Action is one of "add", "remove", "promote", "demote".
func (c *Client) UpdateParticipants(ctx context.Context, instance, groupJID, action string, participants []string) error {
	query := url.Values{}
	query.Set("groupJid", groupJID)
	payload := map[string]interface{}{
		"action":       action,
		"participants": participants,
	}
	return c.do(ctx, "update participants", http.MethodPost, "/group/updateParticipant/"+url.PathEscape(instance), instance, query, payload, nil)
}

// InviteCode fetches the group's invite code.
func (c *Client) InviteCode(ctx context.Context, instance, groupJID string) (string, error) {
	query := url.Values{}
	query.Set("groupJid", groupJID)
	var out struct {
		InviteCode string `json:"inviteCode"`
		InviteURL  string `json:"inviteUrl"`
	}
	if err := c.do(ctx, "invite code", http.MethodGet, "/group/inviteCode/"+url.PathEscape(instance), instance, query, nil, &out); err != nil {
		return "", err
	}
	if out.InviteURL != "" {
		return out.InviteURL, nil
	}
	return out.InviteCode, nil
}
