package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kpetrov-dev/bookstore-api/internal/catalog"
)

type CreateBookRequest struct {
	Title         string  `json:"title" validate:"required,min=1"`
	Author        string  `json:"author"`
	Price         float64 `json:"price" validate:"gte=0"`
	StockQuantity int     `json:"stock_quantity" validate:"gte=0"`
}

type AvailabilityResponse struct {
	BookID    uuid.UUID `json:"book_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
	InStock   bool      `json:"in_stock"`
}

type BookHandler struct {
	books    catalog.Repository
	validate *validator.Validate
}

func NewBookHandler(books catalog.Repository) *BookHandler {
	return &BookHandler{
		books:    books,
		validate: validator.New(),
	}
}

func (h *BookHandler) RegisterRoutes(router chi.Router) {
	router.Post("/books", h.handleCreateBook)
	router.Get("/books", h.handleListBooks)
	router.Get("/books/{id}", h.handleGetBookByID)
	router.Get("/books/{id}/availability", h.handleCheckAvailability)
}

func (h *BookHandler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !ident.Privileged {
		respondWithError(w, r, http.StatusForbidden, "privileged access required")
		return
	}

	var requestPayload CreateBookRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode create book request")
		respondWithError(w, r, http.StatusBadRequest, "invalid request payload")
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok {
			respondWithError(w, r, http.StatusBadRequest, formatValidationErrors(validationErrors))
		} else {
			respondWithError(w, r, http.StatusInternalServerError, "internal validation error")
		}
		return
	}

	book := catalog.Book{
		Title:         requestPayload.Title,
		Author:        requestPayload.Author,
		Price:         requestPayload.Price,
		StockQuantity: requestPayload.StockQuantity,
	}

	if _, err := h.books.CreateBook(r.Context(), &book); err != nil {
		log.Error().Err(err).Msg("Failed to create book")
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusCreated, book)
}

func (h *BookHandler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.ListBooks(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list books")
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, books)
}

func (h *BookHandler) handleGetBookByID(w http.ResponseWriter, r *http.Request) {
	bookID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid id parameter")
		return
	}

	book, err := h.books.GetBookByID(r.Context(), bookID)
	if err != nil {
		log.Warn().Err(err).Stringer("book_id", bookID).Msg("Failed to get book by id")
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, book)
}

func (h *BookHandler) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	bookID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, "invalid id parameter")
		return
	}

	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || quantity <= 0 {
		respondWithError(w, r, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}

	book, err := h.books.GetBookByID(r.Context(), bookID)
	if err != nil {
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	ok, err := h.books.CheckAvailability(r.Context(), bookID, quantity)
	if err != nil {
		respondWithError(w, r, mapErrorToStatusCode(err), clientMessage(err))
		return
	}

	respondWithJSON(w, http.StatusOK, AvailabilityResponse{
		BookID:    bookID,
		Requested: quantity,
		Available: book.StockQuantity,
		InStock:   ok,
	})
}
