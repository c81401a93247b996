package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"vaultcore/crypto"
)

// SigningDigest is the digest an operator key signs to bind a caller address
// to a mutating request. Fields are the request's string values in the order
// the method documents them, hashed together with the method name so a
// signature for one method never authorizes another.
func SigningDigest(method string, fields ...string) []byte {
	payload := struct {
		Method string   `json:"method"`
		Fields []string `json:"fields"`
	}{method, fields}
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	digest := sha256.Sum256(b)
	return digest[:]
}

// requireSignature verifies that the hex signature recovers to the claimed
// caller address over the digest. It writes the RPC error and returns false
// on any mismatch, so callers can bail out directly.
func requireSignature(w http.ResponseWriter, req *RPCRequest, caller crypto.Address, sigHex string, digest []byte) bool {
	trimmed := strings.TrimPrefix(strings.TrimSpace(sigHex), "0x")
	if trimmed == "" {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "signature required", nil)
		return false
	}
	sig, err := hex.DecodeString(trimmed)
	if err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "malformed signature", err.Error())
		return false
	}
	recovered, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid signature", err.Error())
		return false
	}
	if !recovered.Equal(caller) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "signature does not match caller", recovered.String())
		return false
	}
	return true
}
