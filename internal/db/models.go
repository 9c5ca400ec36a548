package db

import "github.com/ceylongems/storefront/internal/models"

type Order = models.Order
type WebhookEvent = models.WebhookEvent
