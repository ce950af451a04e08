package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ray-remotestate/restro-qr/database"
	"github.com/ray-remotestate/restro-qr/database/dbhelper"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/notifier"
	"github.com/ray-remotestate/restro-qr/utils"
)

const invoiceNumberAttempts = 3

// loadInvoice builds the invoice for an order, allocating its number on first
// use. The number stays fixed on later calls.
func loadInvoice(ctx context.Context, order models.Order) (models.Invoice, error) {
	restaurant, err := dbhelper.GetRestaurantByID(ctx, order.RestaurantID)
	if err != nil {
		return models.Invoice{}, err
	}

	for attempt := 0; ; attempt++ {
		candidate, err := models.NewInvoiceNumber(time.Now())
		if err != nil {
			return models.Invoice{}, err
		}
		number, issuedAt, err := dbhelper.EnsureInvoice(ctx, order.ID, candidate)
		if errors.Is(err, dbhelper.ErrConflict) && attempt+1 < invoiceNumberAttempts {
			continue
		}
		if err != nil {
			return models.Invoice{}, err
		}
		return models.BuildInvoice(number, issuedAt, order, restaurant), nil
	}
}

func orderForStaff(w http.ResponseWriter, r *http.Request) (models.Order, bool) {
	orderID, ok := pathUUID(w, r, "order_id")
	if !ok {
		return models.Order{}, false
	}
	order, err := dbhelper.GetOrder(r.Context(), database.Restro, orderID)
	if err != nil {
		respondStoreError(w, r, err, "failed to load order")
		return models.Order{}, false
	}
	if _, ok := authorizeRestaurant(w, r, order.RestaurantID); !ok {
		return models.Order{}, false
	}
	return order, true
}

func GetInvoice(w http.ResponseWriter, r *http.Request) {
	order, ok := orderForStaff(w, r)
	if !ok {
		return
	}
	invoice, err := loadInvoice(r.Context(), order)
	if err != nil {
		respondStoreError(w, r, err, "failed to build invoice")
		return
	}
	utils.RespondJSON(w, http.StatusOK, invoice)
}

// SendInvoice emails the invoice to the customer on the order.
func SendInvoice(w http.ResponseWriter, r *http.Request) {
	order, ok := orderForStaff(w, r)
	if !ok {
		return
	}
	if order.CustomerEmail == "" {
		utils.RespondError(w, http.StatusBadRequest, "order has no customer email")
		return
	}

	invoice, err := loadInvoice(r.Context(), order)
	if err != nil {
		respondStoreError(w, r, err, "failed to build invoice")
		return
	}
	if err := notifier.Send(r.Context(), notifier.InvoiceEmail(invoice)); err != nil {
		logrus.WithError(err).WithField("order_id", order.ID).Error("failed to email invoice")
		utils.RespondError(w, http.StatusBadGateway, "failed to send invoice email")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message":        "Invoice sent",
		"invoice_number": invoice.InvoiceNumber,
		"order_id":       order.ID,
	})
}
