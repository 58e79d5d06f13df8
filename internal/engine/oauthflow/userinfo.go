package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"toollink/internal/engine/connections"
	"toollink/internal/platform/models"
)

// userInfo covers the overlapping profile shapes of the supported
// providers: Google uses id/name/picture, GitHub id/login/avatar_url,
// OIDC-style providers sub.
type userInfo struct {
	ID      json.Number `json:"id"`
	Sub     string      `json:"sub"`
	Email   string      `json:"email"`
	Name    string      `json:"name"`
	Login   string      `json:"login"`
	Picture string      `json:"picture"`
	Avatar  string      `json:"avatar_url"`
}

func fetchProfile(ctx context.Context, conf *oauth2.Config, p *models.OAuthProvider, tok *oauth2.Token) (connections.Profile, error) {
	client := conf.Client(ctx, tok)

	resp, err := client.Get(p.UserInfoURL)
	if err != nil {
		return connections.Profile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return connections.Profile{}, fmt.Errorf("userinfo endpoint returned %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return connections.Profile{}, err
	}

	id := info.ID.String()
	if id == "" {
		id = info.Sub
	}
	if id == "" {
		return connections.Profile{}, fmt.Errorf("userinfo response carries no user id")
	}

	name := info.Name
	if name == "" {
		name = info.Login
	}
	avatar := info.Picture
	if avatar == "" {
		avatar = info.Avatar
	}

	email := info.Email
	if email == "" {
		// GitHub hides private emails from the profile endpoint; the
		// email listing still exposes the primary one
		email = fetchPrimaryEmail(client, p.UserInfoURL)
	}

	return connections.Profile{
		OAuthUserID: id,
		Email:       email,
		DisplayName: name,
		AvatarURL:   avatar,
	}, nil
}

func fetchPrimaryEmail(client *http.Client, userInfoURL string) string {
	resp, err := client.Get(strings.TrimSuffix(userInfoURL, "/") + "/emails")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return ""
	}

	for _, e := range emails {
		if e.Primary {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}
