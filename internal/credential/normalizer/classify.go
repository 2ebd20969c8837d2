package normalizer

import (
	"net/url"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	dErrors "certwallet/pkg/domain-errors"
)

// Kind is the classification of a scanned payload.
type Kind string

const (
	KindIssuerIntroduction Kind = "issuer_introduction"
	KindCredential         Kind = "credential"
	// KindURL is a bare http(s) link to be dereferenced and ingested as a URL import.
	KindURL Kind = "url"
)

// Introduction is the issuer data carried by an introduction payload.
type Introduction struct {
	IntroductionURL string `json:"introduction_url"`
	Name            string `json:"name,omitempty"`
	PublicKeyID     string `json:"public_key_id,omitempty"`
	Email           string `json:"email,omitempty"`
	Image           string `json:"image,omitempty"`
}

// Classification is the outcome of ClassifyQR.
type Classification struct {
	Kind         Kind          `json:"kind"`
	URL          string        `json:"url,omitempty"`
	Introduction *Introduction `json:"introduction,omitempty"`
}

// ClassifyQR decides whether a scanned payload introduces an issuer or
// carries a credential. An introductionURL takes precedence over proof
// material; a malformed introductionURL is rejected even when a proof is
// present.
func ClassifyQR(raw string) (Classification, error) {
	trimmed := strings.TrimSpace(raw)
	if isHTTPURL(trimmed) {
		return Classification{Kind: KindURL, URL: trimmed}, nil
	}
	if !gjson.Valid(trimmed) || !gjson.Parse(trimmed).IsObject() {
		return Classification{}, validationError("data must be a valid JSON object")
	}
	payload := gjson.Parse(trimmed)

	if intro := payload.Get("introductionURL"); intro.Type == gjson.String && intro.String() != "" {
		u, err := url.Parse(intro.String())
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Classification{}, validationError("introductionURL is not a valid URL")
		}
		if queryParamCount(u) > 1 {
			return Classification{}, validationError("introductionURL must have at most one parameter")
		}
		return Classification{
			Kind: KindIssuerIntroduction,
			Introduction: &Introduction{
				IntroductionURL: intro.String(),
				Name:            strings.TrimSpace(payload.Get("name").String()),
				PublicKeyID:     PublicKeyID(payload.Get("publicKey")),
				Email:           strings.TrimSpace(payload.Get("email").String()),
				Image:           payload.Get("image").String(),
			},
		}, nil
	}

	if pv := payload.Get("proof.proofValue"); pv.Exists() && pv.Type != gjson.Null && pv.String() != "" {
		return Classification{Kind: KindCredential}, nil
	}
	return Classification{}, validationError("must contain either introductionURL or proof.proofValue")
}

// queryParamCount counts parameter keys in order of appearance, repeated keys
// included.
func queryParamCount(u *url.URL) int {
	return len(lo.Filter(strings.Split(u.RawQuery, "&"), func(p string, _ int) bool { return p != "" }))
}

func isHTTPURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

func validationError(msg string) error {
	return dErrors.New(dErrors.CodeValidation, "Invalid QR code: "+msg)
}
