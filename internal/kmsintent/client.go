// Package kmsintent decrypts intent ciphertext blobs inside the TEE
// transport boundary and decodes them into domain.Intent values.
package kmsintent

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/ethereum/go-ethereum/common"

	"github.com/shadowpool/shadowpool/internal/domain"
)

// Client wraps the AWS KMS SDK to decrypt intent ciphertext blobs.
type Client struct {
	kms *kms.Client
}

// New creates a kmsintent Client. If localStackEndpoint is non-empty, the
// client targets that endpoint with dummy credentials (for local
// development). Otherwise it uses the AWS default credential chain (IAM
// roles in production).
func New(ctx context.Context, region, localStackEndpoint string) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))

	if localStackEndpoint != "" {
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("kmsintent: load aws config: %w", err)
	}

	var kmsOpts []func(*kms.Options)
	if localStackEndpoint != "" {
		kmsOpts = append(kmsOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(localStackEndpoint)
		})
	}

	return &Client{
		kms: kms.NewFromConfig(cfg, kmsOpts...),
	}, nil
}

// wireIntent is the JSON shape an intent ciphertext decrypts to, before
// conversion into domain.Intent's big.Int/typed fields.
type wireIntent struct {
	Side        uint8  `json:"side"`
	Trader      string `json:"trader"`
	BaseToken   string `json:"baseToken"`
	QuoteToken  string `json:"quoteToken"`
	AmountBase  string `json:"amountBase"`
	LimitPrice  string `json:"limitPrice"`
	Expiry      uint64 `json:"expiry"`
	Salt        string `json:"salt"`
	SlippageMin string `json:"slippageMin,omitempty"`
	SlippageMax string `json:"slippageMax,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Decrypt sends ciphertext to KMS and returns the recovered plaintext
// verbatim. Used both by DecryptIntent and by the matcher's own signing
// key bootstrap, where the plaintext is a raw ECDSA key rather than a
// wireIntent.
func (c *Client) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	out, err := c.kms.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("kmsintent: decrypt: %w", err)
	}
	return out.Plaintext, nil
}

// DecryptIntent sends ciphertext to KMS, then decodes the recovered
// plaintext into a domain.Intent. Only the decoded Intent is returned; the
// intermediate plaintext bytes are neither returned nor wiped.
func (c *Client) DecryptIntent(ctx context.Context, ciphertext []byte) (domain.Intent, error) {
	plaintext, err := c.Decrypt(ctx, ciphertext)
	if err != nil {
		return domain.Intent{}, err
	}

	var w wireIntent
	if err := json.Unmarshal(plaintext, &w); err != nil {
		return domain.Intent{}, fmt.Errorf("kmsintent: decode plaintext: %w", err)
	}

	return intentFromWire(w)
}

func intentFromWire(w wireIntent) (domain.Intent, error) {
	amountBase, ok := new(big.Int).SetString(w.AmountBase, 10)
	if !ok {
		return domain.Intent{}, fmt.Errorf("kmsintent: invalid amountBase %q", w.AmountBase)
	}
	limitPrice, ok := new(big.Int).SetString(w.LimitPrice, 10)
	if !ok {
		return domain.Intent{}, fmt.Errorf("kmsintent: invalid limitPrice %q", w.LimitPrice)
	}

	saltBytes := []byte(w.Salt)
	if len(saltBytes) > 32 {
		return domain.Intent{}, fmt.Errorf("kmsintent: salt exceeds 32 bytes")
	}
	var salt [32]byte
	copy(salt[32-len(saltBytes):], saltBytes)

	in := domain.Intent{
		Side:       domain.Side(w.Side),
		Trader:     common.HexToAddress(w.Trader),
		BaseToken:  common.HexToAddress(w.BaseToken),
		QuoteToken: common.HexToAddress(w.QuoteToken),
		AmountBase: amountBase,
		LimitPrice: limitPrice,
		Expiry:     w.Expiry,
		Salt:       salt,
		Notes:      w.Notes,
	}

	if w.SlippageMin != "" {
		if v, ok := new(big.Int).SetString(w.SlippageMin, 10); ok {
			in.SlippageMin = v
		}
	}
	if w.SlippageMax != "" {
		if v, ok := new(big.Int).SetString(w.SlippageMax, 10); ok {
			in.SlippageMax = v
		}
	}

	return in, nil
}
