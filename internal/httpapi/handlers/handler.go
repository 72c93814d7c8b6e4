package handlers

import (
	"github.com/lumisalon/salon-chat/internal/chat"
	"github.com/lumisalon/salon-chat/internal/store/rabbitmq"
	"github.com/lumisalon/salon-chat/internal/vector"
)

type Handler struct {
	ChatSvc *chat.Service
	Repo    *chat.Repo
	Rabbit  *rabbitmq.Publisher // nil when the queue is not configured
	Vectors *vector.Store
	Index   *vector.Index
}

func NewHandler(svc *chat.Service, repo *chat.Repo, rabbit *rabbitmq.Publisher, vectors *vector.Store, index *vector.Index) *Handler {
	return &Handler{
		ChatSvc: svc,
		Repo:    repo,
		Rabbit:  rabbit,
		Vectors: vectors,
		Index:   index,
	}
}
