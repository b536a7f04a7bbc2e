// Package download builds the download manifest returned to purchasers.
//
// URLs are self-contained: an HMAC over (payment key, file path, expiry)
// lets the file endpoint verify a link without a database hit. License
// keys are joined onto files by product id, never by list position, so a
// bundle with unlicensed children simply has gaps instead of
// misattributed keys.
package download

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/reaktivstudios/external-purchase-api/internal/catalog"
	"github.com/reaktivstudios/external-purchase-api/internal/ledger"
)

// Entry is one row of the manifest: a product's file with its signed URL
// and, when the product is licensed, the license key issued on the payment.
type Entry struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	FileName    string `json:"file_name"`
	URL         string `json:"url"`
	License     string `json:"license,omitempty"`
}

// Signer mints verifiable download URLs.
type Signer struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
}

// NewSigner creates a signer. baseURL is the store root the file endpoint
// lives under; ttl bounds how long a minted link stays valid.
func NewSigner(baseURL string, secret string, ttl time.Duration) *Signer {
	return &Signer{baseURL: baseURL, secret: []byte(secret), ttl: ttl}
}

// Sign builds a signed URL for one file on one payment.
func (s *Signer) Sign(purchaseKey, filePath string, now time.Time) string {
	expires := now.Add(s.ttl).Unix()
	sig := s.signature(purchaseKey, filePath, expires)

	q := url.Values{}
	q.Set("key", purchaseKey)
	q.Set("file", filePath)
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)
	return fmt.Sprintf("%s/download?%s", s.baseURL, q.Encode())
}

// Verify checks a signature produced by Sign and that the link has not
// expired.
func (s *Signer) Verify(purchaseKey, filePath string, expires int64, sig string, now time.Time) bool {
	if now.Unix() > expires {
		return false
	}
	want := s.signature(purchaseKey, filePath, expires)
	return hmac.Equal([]byte(want), []byte(sig))
}

func (s *Signer) signature(purchaseKey, filePath string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%d", purchaseKey, filePath, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// Manifest assembles the download entries for a payment across the
// resolved file sets. Recomputed on every call; nothing here is stored.
func (s *Signer) Manifest(payment *ledger.Payment, sets []catalog.FileSet, now time.Time) []Entry {
	var out []Entry
	for _, set := range sets {
		license, _ := payment.LicenseFor(set.ProductID)
		for _, f := range set.Files {
			out = append(out, Entry{
				ProductID:   set.ProductID,
				ProductName: set.ProductName,
				FileName:    f.Name,
				URL:         s.Sign(payment.PurchaseKey, f.Path, now),
				License:     license,
			})
		}
	}
	return out
}
