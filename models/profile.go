package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Profile is the free-form mapping stored at users/{uid}/profile.
type Profile map[string]any

// ProfilePatch enumerates the profile fields a client may change. Anything
// else in a request body is rejected.
type ProfilePatch struct {
	DisplayName  *string `json:"display_name,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Organization *string `json:"organization,omitempty"`
	Role         *string `json:"role,omitempty"`
	Location     *string `json:"location,omitempty"`
	AvatarURL    *string `json:"avatar_url,omitempty"`
}

const maxProfileFieldLen = 256

// ParseProfilePatch decodes a request body strictly.
func ParseProfilePatch(body []byte) (ProfilePatch, error) {
	var patch ProfilePatch
	if len(bytes.TrimSpace(body)) == 0 {
		return patch, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return ProfilePatch{}, fmt.Errorf("invalid profile payload: %w", err)
	}
	if dec.More() {
		return ProfilePatch{}, fmt.Errorf("invalid profile payload: trailing data")
	}
	for name, v := range patch.Fields() {
		if s, ok := v.(string); ok && len(s) > maxProfileFieldLen {
			return ProfilePatch{}, fmt.Errorf("profile field %s exceeds %d characters", name, maxProfileFieldLen)
		}
	}
	return patch, nil
}

// Fields returns only the fields present in the patch, keyed by their stored names.
func (p ProfilePatch) Fields() map[string]any {
	fields := make(map[string]any)
	set := func(key string, v *string) {
		if v != nil {
			fields[key] = strings.TrimSpace(*v)
		}
	}
	set("display_name", p.DisplayName)
	set("phone", p.Phone)
	set("organization", p.Organization)
	set("role", p.Role)
	set("location", p.Location)
	set("avatar_url", p.AvatarURL)
	return fields
}
