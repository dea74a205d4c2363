package handlers

import (
	"net/http"

	"github.com/fmuellner/telepathy-mission-control/pkg/accountstore"
)

// AccountHandler exposes the account-storage plug-in API's read surface
// over HTTP, backing `dispatchctl accounts list`.
type AccountHandler struct {
	manager *accountstore.Manager
}

// NewAccountHandler creates an account handler over manager.
func NewAccountHandler(manager *accountstore.Manager) *AccountHandler {
	return &AccountHandler{manager: manager}
}

// List handles GET /api/v1/accounts: every account known to any registered
// backend, fanned out in descending backend priority. Credential hashes
// are never included in the response (Account.CredentialHash is json:"-").
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.manager.ListAccounts(r.Context())
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(accounts))
}
