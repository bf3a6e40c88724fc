package keys

import (
	"encoding/json"
	"net/http"
)

// Handler serves the signer's public key for verifier consumption.
type Handler struct {
	doc KeyDocument
}

// NewHandler creates a handler for a hex public key and its key version.
func NewHandler(pubKeyHex, keyVersion string) (*Handler, error) {
	if err := validateKeyHex(pubKeyHex); err != nil {
		return nil, err
	}
	return &Handler{doc: KeyDocument{PublicKey: pubKeyHex, KeyVersion: keyVersion}}, nil
}

// ServeHTTP answers GET with the key document.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.doc)
}
