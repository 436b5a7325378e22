/*
Package identity contains core data structures and logic related to participant identity.

It defines the Identity struct carried by every live connection, the avatar descriptor
exchanged between clients, and the codec that parses identities from the WebSocket
handshake query string.
*/
package identity

import (
	"encoding/json"
	"net/url"

	"github.com/Tzinov15/messaging-app-backend/internal/pkg/errs"
)

// ServerUsername is the reserved username representing the relay itself as a chat partner.
const ServerUsername = "SERVER"

// Avatar describes the display appearance of a participant. The relay carries
// it verbatim between clients and never interprets the individual fields.
type Avatar struct {
	AvatarStyle     string `json:"avatarStyle"`
	TopType         string `json:"topType"`
	AccessoriesType string `json:"accessoriesType"`
	FacialHairType  string `json:"facialHairType"`
	FacialHairColor string `json:"facialHairColor"`
	ClotheType      string `json:"clotheType"`
	ClotheColor     string `json:"clotheColor"`
	EyeType         string `json:"eyeType"`
	EyebrowType     string `json:"eyebrowType"`
	MouthType       string `json:"mouthType"`
	SkinColor       string `json:"skinColor"`
}

// ServerAvatar is the fixed avatar the relay presents when acting as a participant.
var ServerAvatar = Avatar{
	AvatarStyle:     "Transparent",
	TopType:         "Hat",
	AccessoriesType: "Round",
	FacialHairType:  "BeardMagestic",
	FacialHairColor: "Black",
	ClotheType:      "ShirtCrewNeck",
	ClotheColor:     "Blue",
	EyeType:         "Side",
	EyebrowType:     "UnibrowNatural",
	MouthType:       "Serious",
	SkinColor:       "Tanned",
}

// Identity represents the self-asserted identity of a connection.
// It is fixed at connect time and never reassigned for the life of the connection.
type Identity struct {
	Username string `json:"username"`
	Avatar   Avatar `json:"avatar"`
}

// ServerIdentity returns the synthetic identity of the relay itself.
func ServerIdentity() Identity {
	return Identity{Username: ServerUsername, Avatar: ServerAvatar}
}

// ParseIdentity extracts a participant identity from the handshake query parameters.
// The username parameter is mandatory. The avatarOptions parameter, if present,
// must decode to a valid avatar descriptor; an absent avatar yields the zero descriptor.
func ParseIdentity(query url.Values) (Identity, *errs.CustomError) {
	username := query.Get("username")
	if username == "" {
		return Identity{}, errs.NewError(errs.ErrIdentityInvalid)
	}

	id := Identity{Username: username}

	rawAvatar := query.Get("avatarOptions")
	if rawAvatar != "" {
		avatar, err := DecodeAvatar(rawAvatar)
		if err != nil {
			return Identity{}, errs.NewError(errs.ErrAvatarInvalid)
		}
		id.Avatar = avatar
	}

	return id, nil
}

// EncodeAvatar serializes an avatar descriptor into the transport-safe text form
// used on the handshake query string.
func EncodeAvatar(a Avatar) string {
	// Marshaling a plain struct of strings cannot fail.
	raw, _ := json.Marshal(a)
	return url.QueryEscape(string(raw))
}

// DecodeAvatar parses the transport-safe text form back into an avatar descriptor.
// DecodeAvatar(EncodeAvatar(a)) returns a for every valid descriptor a.
func DecodeAvatar(s string) (Avatar, error) {
	unescaped, err := url.QueryUnescape(s)
	if err != nil {
		return Avatar{}, err
	}

	var a Avatar
	if err := json.Unmarshal([]byte(unescaped), &a); err != nil {
		return Avatar{}, err
	}

	return a, nil
}
