package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/and161185/devdice/internal/model"
)

// apiError is a non-2xx reply from the server.
type apiError struct {
	Status  int
	Message string
	Detail  string
}

func (e *apiError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%d %s (%s)", e.Status, msg, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, msg)
}

type session struct {
	Token string           `json:"token"`
	User  model.PublicUser `json:"user"`
}

type message struct {
	Message string `json:"message"`
}

// client talks to the DevDice REST API.
type client struct {
	base  string
	hc    *http.Client
	token string
}

func newClient(addr string, tlsCfg *tls.Config, token string) *client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if tlsCfg != nil {
		tr.TLSClientConfig = tlsCfg
	}
	return &client{
		base:  strings.TrimRight(addr, "/"),
		hc:    &http.Client{Transport: tr, Timeout: 30 * time.Second},
		token: token,
	}
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var eb struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb)
		return &apiError{Status: resp.StatusCode, Message: eb.Message, Detail: eb.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *client) json(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	ct := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body, ct = bytes.NewReader(b), "application/json"
	}
	return c.do(ctx, method, path, body, ct, out)
}

func (c *client) signUp(ctx context.Context, name, email, password string) (session, error) {
	var s session
	err := c.json(ctx, http.MethodPost, "/users/signup",
		map[string]string{"name": name, "email": email, "password": password}, &s)
	return s, err
}

func (c *client) login(ctx context.Context, email, password string) (session, error) {
	var s session
	err := c.json(ctx, http.MethodPost, "/users/login",
		map[string]string{"email": email, "password": password}, &s)
	return s, err
}

func (c *client) me(ctx context.Context) (model.PublicUser, error) {
	var out struct {
		User model.PublicUser `json:"user"`
	}
	err := c.json(ctx, http.MethodGet, "/users/me", nil, &out)
	return out.User, err
}

func (c *client) forgot(ctx context.Context, email string) (string, error) {
	var m message
	err := c.json(ctx, http.MethodPost, "/users/forgot-password", map[string]string{"email": email}, &m)
	return m.Message, err
}

func (c *client) reset(ctx context.Context, token, password string) (string, error) {
	var m message
	err := c.json(ctx, http.MethodPost, "/users/reset-password",
		map[string]string{"token": token, "newPassword": password}, &m)
	return m.Message, err
}

func (c *client) deleteAccount(ctx context.Context, email string) error {
	return c.json(ctx, http.MethodDelete, "/users/"+url.PathEscape(email), nil, nil)
}

func (c *client) random(ctx context.Context) (model.Challenge, error) {
	var ch model.Challenge
	err := c.json(ctx, http.MethodGet, "/challenges/random", nil, &ch)
	return ch, err
}

func (c *client) challenges(ctx context.Context) ([]model.Challenge, error) {
	var list []model.Challenge
	err := c.json(ctx, http.MethodGet, "/challenges", nil, &list)
	return list, err
}

func (c *client) addChallenge(ctx context.Context, in model.ChallengeInput) (model.Challenge, error) {
	var ch model.Challenge
	err := c.json(ctx, http.MethodPost, "/challenges", in, &ch)
	return ch, err
}

func (c *client) importCSV(ctx context.Context, r io.Reader) (model.BulkResult, error) {
	var res model.BulkResult
	err := c.do(ctx, http.MethodPost, "/challenges/bulk/csv", r, "text/csv", &res)
	return res, err
}

func (c *client) save(ctx context.Context, challengeID int64) (model.UserChallenge, error) {
	var uc model.UserChallenge
	err := c.json(ctx, http.MethodPost, "/my-challenges", map[string]int64{"challengeId": challengeID}, &uc)
	return uc, err
}

func (c *client) mine(ctx context.Context) ([]model.UserChallenge, error) {
	var list []model.UserChallenge
	err := c.json(ctx, http.MethodGet, "/my-challenges", nil, &list)
	return list, err
}

func (c *client) complete(ctx context.Context, id int64) (model.UserChallenge, error) {
	var uc model.UserChallenge
	err := c.json(ctx, http.MethodPatch, fmt.Sprintf("/my-challenges/%d", id), nil, &uc)
	return uc, err
}

func (c *client) remove(ctx context.Context, id int64) error {
	return c.json(ctx, http.MethodDelete, fmt.Sprintf("/my-challenges/%d", id), nil, nil)
}

var errNotLoggedIn = errors.New("no valid token (login required)")
