// internal/handler/receipt_handler.go
package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/flowsend/campaign-worker/internal/model"
	"github.com/flowsend/campaign-worker/internal/repository"
)

// ReceiptHandler ingests delivery receipts from the messaging provider's
// webhook. A "read" receipt flips the matching recipient to OPENED.
type ReceiptHandler struct {
	Recipients repository.RecipientRepositoryInterface
}

type receiptPayload struct {
	Statuses []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"statuses"`
}

// HandleReceipts handles POST /channel/receipts. The provider retries on
// non-200 responses, so this always answers 200 once the body is read.
func (h *ReceiptHandler) HandleReceipts(w http.ResponseWriter, r *http.Request) {
	var payload receiptPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("⚠️ Invalid receipt payload: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, status := range payload.Statuses {
		if status.Status != "read" || status.ID == "" {
			continue
		}

		recipient, err := h.Recipients.FindByMessageID(status.ID)
		if err != nil {
			log.Printf("⚠️ Receipt lookup failed for message %s: %v", status.ID, err)
			continue
		}
		if recipient == nil {
			continue
		}

		// Forward-only: only SENT and QUEUED may move to OPENED.
		err = h.Recipients.UpdateStatus(recipient.ID,
			[]model.RecipientStatus{model.RecipientSent, model.RecipientQueued},
			model.RecipientOpened,
		)
		if err != nil {
			log.Printf("⚠️ Failed to mark recipient %s opened: %v", recipient.ID, err)
			continue
		}
		log.Printf("✅ Recipient %s status updated to OPENED", recipient.ID)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Message received"))
}
