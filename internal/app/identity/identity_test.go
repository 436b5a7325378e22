package identity

import (
	"net/url"
	"testing"

	"github.com/Tzinov15/messaging-app-backend/internal/pkg/errs"
)

func TestParseIdentityRequiresUsername(t *testing.T) {
	_, err := ParseIdentity(url.Values{})
	if err == nil {
		t.Fatal("ParseIdentity accepted a handshake without a username")
	}
	if err.Code != errs.ErrIdentityInvalid {
		t.Errorf("error code = %d, want %d", err.Code, errs.ErrIdentityInvalid)
	}
}

func TestParseIdentityWithoutAvatarUsesZeroDescriptor(t *testing.T) {
	query := url.Values{"username": {"jijnov"}}

	id, err := ParseIdentity(query)
	if err != nil {
		t.Fatalf("ParseIdentity returned error: %v", err)
	}
	if id.Username != "jijnov" {
		t.Errorf("username = %q, want jijnov", id.Username)
	}
	if id.Avatar != (Avatar{}) {
		t.Errorf("avatar = %+v, want zero descriptor", id.Avatar)
	}
}

func TestParseIdentityWithAvatar(t *testing.T) {
	avatar := Avatar{
		AvatarStyle: "Circle",
		TopType:     "ShortHairShortFlat",
		EyeType:     "Happy",
		SkinColor:   "Light",
	}

	query := url.Values{
		"username":      {"jijnov"},
		"avatarOptions": {EncodeAvatar(avatar)},
	}

	id, err := ParseIdentity(query)
	if err != nil {
		t.Fatalf("ParseIdentity returned error: %v", err)
	}
	if id.Avatar != avatar {
		t.Errorf("avatar = %+v, want %+v", id.Avatar, avatar)
	}
}

func TestParseIdentityRejectsMalformedAvatar(t *testing.T) {
	query := url.Values{
		"username":      {"jijnov"},
		"avatarOptions": {"%7Bnot-json"},
	}

	_, err := ParseIdentity(query)
	if err == nil {
		t.Fatal("ParseIdentity accepted a malformed avatar")
	}
	if err.Code != errs.ErrAvatarInvalid {
		t.Errorf("error code = %d, want %d", err.Code, errs.ErrAvatarInvalid)
	}
}

func TestAvatarRoundTrip(t *testing.T) {
	descriptors := []Avatar{
		{},
		ServerAvatar,
		{
			AvatarStyle:     "Circle",
			TopType:         "LongHairStraight",
			AccessoriesType: "Prescription02",
			FacialHairType:  "Blank",
			ClotheType:      "Hoodie",
			ClotheColor:     "Heather",
			EyeType:         "Default",
			EyebrowType:     "RaisedExcited",
			MouthType:       "Smile",
			SkinColor:       "Brown",
		},
	}

	for _, want := range descriptors {
		got, err := DecodeAvatar(EncodeAvatar(want))
		if err != nil {
			t.Fatalf("DecodeAvatar(EncodeAvatar(%+v)) returned error: %v", want, err)
		}
		if got != want {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestDecodeAvatarRejectsBadPercentEncoding(t *testing.T) {
	if _, err := DecodeAvatar("%zz"); err == nil {
		t.Error("DecodeAvatar accepted invalid percent encoding")
	}
}

func TestServerIdentity(t *testing.T) {
	id := ServerIdentity()

	if id.Username != ServerUsername {
		t.Errorf("username = %q, want %q", id.Username, ServerUsername)
	}
	if id.Avatar != ServerAvatar {
		t.Errorf("avatar = %+v, want the fixed server avatar", id.Avatar)
	}
}
