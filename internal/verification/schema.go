package verification

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"certwallet/internal/credential/normalizer"
)

const formatSchema = `{
  "type": "object",
  "required": ["@context", "type", "issuer", "proof"],
  "anyOf": [
    {"required": ["issuanceDate"]},
    {"required": ["validFrom"]}
  ],
  "properties": {
    "@context": {"type": ["array", "string", "object"]},
    "type": {"type": ["array", "string"]},
    "issuer": {
      "oneOf": [
        {"type": "string", "minLength": 1},
        {"type": "object", "anyOf": [{"required": ["id"]}, {"required": ["url"]}]}
      ]
    },
    "proof": {
      "type": "object",
      "required": ["type"],
      "anyOf": [
        {"required": ["proofValue"], "properties": {"proofValue": {"type": "string", "minLength": 1}}},
        {"required": ["merkleRoot", "targetHash", "anchors"]}
      ]
    }
  }
}`

var formatSchemaLoader = gojsonschema.NewStringLoader(formatSchema)

// checkFormat is the structural gate run before any check. It returns the
// user-facing reasons the document was rejected, or nil.
func checkFormat(document []byte) []string {
	result, err := gojsonschema.Validate(formatSchemaLoader, gojsonschema.NewBytesLoader(document))
	if err != nil {
		return []string{"credential is not valid JSON"}
	}
	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	if len(problems) > 0 {
		return problems
	}

	issuer := normalizer.ParseIssuer(gjson.GetBytes(document, "issuer"))
	u, err := url.Parse(strings.TrimSpace(issuer.ProfileURL()))
	if err != nil || (u.Host == "" && u.Scheme != "did") {
		return []string{"issuer URL is not valid"}
	}
	return nil
}
