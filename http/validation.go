package http

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	dealmatcher "github.com/Lucky4Angel/deal"
)

// MatchRequestSchema is the JSON schema of a POST /v1/match body.
// Prices are decimal strings since they do not fit a JSON number.
const MatchRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["dealId", "pricePerWorkerEpoch", "paymentToken", "targetWorkers", "maxWorkersPerProvider", "currentEpoch"],
	"properties": {
		"dealId": {"type": "string", "minLength": 1},
		"pricePerWorkerEpoch": {"type": "string", "pattern": "^[0-9]+$"},
		"effectors": {"type": "array", "items": {"type": "string"}},
		"paymentToken": {"type": "string", "minLength": 1},
		"targetWorkers": {"type": "integer", "minimum": 0},
		"minWorkers": {"type": "integer", "minimum": 0},
		"maxWorkersPerProvider": {"type": "integer", "minimum": 0},
		"currentEpoch": {"type": "integer"},
		"providersAllowList": {"type": "array", "items": {"type": "string"}},
		"providersDenyList": {"type": "array", "items": {"type": "string"}}
	},
	"additionalProperties": false
}`

var matchRequestSchema = gojsonschema.NewStringLoader(MatchRequestSchema)

type matchRequestBody struct {
	DealID                string   `json:"dealId"`
	PricePerWorkerEpoch   string   `json:"pricePerWorkerEpoch"`
	Effectors             []string `json:"effectors"`
	PaymentToken          string   `json:"paymentToken"`
	TargetWorkers         int      `json:"targetWorkers"`
	MinWorkers            int      `json:"minWorkers"`
	MaxWorkersPerProvider int      `json:"maxWorkersPerProvider"`
	CurrentEpoch          int64    `json:"currentEpoch"`
	ProvidersAllowList    []string `json:"providersAllowList"`
	ProvidersDenyList     []string `json:"providersDenyList"`
}

// ParseMatchRequest validates body against MatchRequestSchema and converts it.
// Every failure is an invalid_request MatchError.
func ParseMatchRequest(body []byte) (dealmatcher.MatchingRequest, error) {
	result, err := gojsonschema.Validate(matchRequestSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return dealmatcher.MatchingRequest{}, invalid(fmt.Sprintf("invalid JSON body: %v", err), nil)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
		}
		return dealmatcher.MatchingRequest{}, invalid(strings.Join(errs, "; "), map[string]interface{}{"errors": errs})
	}

	var b matchRequestBody
	if err := json.Unmarshal(body, &b); err != nil {
		return dealmatcher.MatchingRequest{}, invalid(fmt.Sprintf("failed to decode body: %v", err), nil)
	}

	price, ok := new(big.Int).SetString(b.PricePerWorkerEpoch, 10)
	if !ok {
		return dealmatcher.MatchingRequest{}, invalid(fmt.Sprintf("invalid pricePerWorkerEpoch %q", b.PricePerWorkerEpoch), nil)
	}

	req := dealmatcher.MatchingRequest{
		DealID:                dealmatcher.NormalizeID(b.DealID),
		PricePerWorkerEpoch:   price,
		Effectors:             orEmpty(b.Effectors),
		PaymentToken:          b.PaymentToken,
		TargetWorkers:         b.TargetWorkers,
		MinWorkers:            b.MinWorkers,
		MaxWorkersPerProvider: b.MaxWorkersPerProvider,
		CurrentEpoch:          b.CurrentEpoch,
		ProvidersAllowList:    orEmpty(b.ProvidersAllowList),
		ProvidersDenyList:     orEmpty(b.ProvidersDenyList),
	}
	if err := req.Validate(); err != nil {
		return dealmatcher.MatchingRequest{}, err
	}
	return req, nil
}

func invalid(msg string, details map[string]interface{}) error {
	return dealmatcher.NewMatchError(dealmatcher.ErrCodeInvalidRequest, msg, details)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
