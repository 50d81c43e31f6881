// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/flowsend/campaign-worker/internal/db"
	"github.com/flowsend/campaign-worker/internal/handler"
	"github.com/flowsend/campaign-worker/internal/repository"
	"github.com/flowsend/campaign-worker/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	// Init DB
	db.Init()

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	recipientRepo := &repository.RecipientRepository{DB: db.DB}

	campaignService := &service.CampaignService{
		Campaigns:  campaignRepo,
		Recipients: recipientRepo,
	}

	campaignHandler := &handler.CampaignHandler{Service: campaignService}
	receiptHandler := &handler.ReceiptHandler{Recipients: recipientRepo}

	r := chi.NewRouter()

	// Campaign routes
	r.Post("/campaigns", campaignHandler.CreateCampaign)
	r.Get("/campaigns", campaignHandler.ListCampaigns)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaign)

	// Delivery receipts from the messaging provider
	r.Post("/channel/receipts", receiptHandler.HandleReceipts)

	log.Println("🚀 Server running on :8080")
	log.Fatal(http.ListenAndServe(":8080", r))
}
