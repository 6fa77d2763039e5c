package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// FetchNotifications returns one page of the user's notifications. A limit
// of zero fetches the server's default first page without paging
// parameters.
func (c *Client) FetchNotifications(ctx context.Context, offset, limit int) (*NotificationPage, error) {
	path := "/notification"
	if limit > 0 {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(limit))
		path += "?" + q.Encode()
	}

	var resp notificationsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching notifications: %w", err)
	}

	return &NotificationPage{
		Notifications: resp.Data.Notifications,
		TotalCount:    resp.Data.TotalCount,
	}, nil
}

// MarkRead marks one notification read on the server.
func (c *Client) MarkRead(ctx context.Context, notificationID string) error {
	path := "/notification/" + url.PathEscape(notificationID) + "/read"
	if err := c.do(ctx, http.MethodPatch, path, nil, nil); err != nil {
		return fmt.Errorf("marking notification %s read: %w", notificationID, err)
	}
	return nil
}

// RespondEvent updates the user's participant status for an event. status
// is the wire value, "accepted" or "declined". A scheduling conflict is
// reported through EventResult, either from a 2xx body with hasConflict or
// from a 409 response.
func (c *Client) RespondEvent(ctx context.Context, eventID, userID, status string) (*EventResult, error) {
	path := fmt.Sprintf(
		"/event/%s/participants/%s/update-status",
		url.PathEscape(eventID), url.PathEscape(userID),
	)

	var resp eventStatusResponse
	err := c.do(ctx, http.MethodPatch, path, eventStatusRequest{Status: status}, &resp)
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusConflict {
			return nil, fmt.Errorf("responding to event %s: %w", eventID, err)
		}
		// A 409 without a decodable body is still a conflict.
		_ = json.Unmarshal(se.Body, &resp)
		resp.HasConflict = true
		if resp.Message == "" {
			resp.Message = se.Message
		}
	}

	result := &EventResult{Message: resp.Message}
	if resp.HasConflict {
		result.Conflict = true
		result.ConflictData = parseConflict(resp.ConflictData, resp.Message)
	}
	return result, nil
}

// RespondWorkspaceInvite accepts or declines a workspace invitation.
// action is "accept" or "decline".
func (c *Client) RespondWorkspaceInvite(ctx context.Context, token, action string) (*InviteResult, error) {
	var resp InviteResult
	err := c.do(ctx, http.MethodPost, "/workspace/invite-response", inviteRequest{Token: token, Action: action}, &resp)
	if err != nil {
		return nil, fmt.Errorf("responding to workspace invite: %w", err)
	}
	return &resp, nil
}

// RespondBoardInvite accepts or declines a board invitation in the given
// workspace.
func (c *Client) RespondBoardInvite(ctx context.Context, workspaceID, token, action string) (*InviteResult, error) {
	path := "/workspace/" + url.PathEscape(workspaceID) + "/board/invite-response"

	var resp InviteResult
	if err := c.do(ctx, http.MethodPost, path, inviteRequest{Token: token, Action: action}, &resp); err != nil {
		return nil, fmt.Errorf("responding to board invite in workspace %s: %w", workspaceID, err)
	}
	return &resp, nil
}
