package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kswiatek/debttracker/config"
	"github.com/kswiatek/debttracker/currency"
	"github.com/kswiatek/debttracker/eventlogger"
	"github.com/kswiatek/debttracker/ledger"
	"github.com/kswiatek/debttracker/middleware"
	"github.com/kswiatek/debttracker/session"
	"github.com/kswiatek/debttracker/user"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		printErrorAndExit("loading config", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		printErrorAndExit("database connection", err)
	}
	err = db.Ping()
	if err != nil {
		printErrorAndExit("pinging database", err)
	}

	evtlogger := eventlogger.NewSqlEventLogger(db)
	sinks := []eventlogger.Sink{evtlogger}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, eventlogger.NewKafkaSink(cfg.KafkaBrokers, "debttracker_events"))
	}
	worker := eventlogger.NewWorker(100, sinks...)
	worker.Start()

	userRepo := user.NewRepository(db)
	sessionRepo := session.NewRepository(db)
	ledgerStore := ledger.NewStore(ledger.NewRepository(db))
	rates := currency.NewService(currency.NewClient(cfg.RatesAPIURL, cfg.RatesAPIKey), cfg.RatesTTL)

	// Warm the rate table; a failure here just means fallback rates until the
	// next conversion triggers a refetch.
	warmCtx, cancelWarm := context.WithTimeout(context.Background(), 15*time.Second)
	if _, err := rates.Refresh(warmCtx, currency.Storage); err != nil {
		slog.Warn("rate table warmup failed", "error", err)
	}
	cancelWarm()

	go func() {
		for range time.Tick(time.Hour) {
			deleted, err := sessionRepo.DeleteExpired(context.Background())
			if err != nil {
				slog.Error("cleaning up sessions", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("cleaned up expired sessions", "count", deleted)
			}
		}
	}()

	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(middleware.AuthMiddleware(sessionRepo))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		worker.Log(eventlogger.NewEvent(
			eventlogger.WithType("health_request"),
			eventlogger.WithData(map[string]string{"message": "ok"}),
		))
		w.Write([]byte("ok"))
	})

	router.Post("/user/register", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		registeredUser, err := userRepo.Register(ctx, req.Email, req.Password)
		if err != nil {
			switch err {
			case user.ErrEmailExists:
				http.Error(w, err.Error(), http.StatusConflict)
			case user.ErrBlankPassword, user.ErrInvalidEmail:
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				slog.Error("failed to register user", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		sess, err := sessionRepo.Create(ctx, registeredUser.ID)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		setSessionCookie(w, sess)

		worker.Log(eventlogger.NewEvent(
			eventlogger.WithType("user.registered"),
			eventlogger.WithData(map[string]string{
				"user_id": registeredUser.ID.String(),
				"email":   registeredUser.Email,
			}),
		))

		respondJSON(w, http.StatusCreated, registeredUser)
	})

	router.Post("/user/login", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		userdb, err := userRepo.GetByEmail(ctx, req.Email)
		if err != nil {
			slog.Error("failed to fetch user", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if userdb == nil {
			http.Error(w, "invalid email or password", http.StatusUnauthorized)
			return
		}

		if err := userRepo.VerifyPassword(userdb.PasswordHash, req.Password); err != nil {
			http.Error(w, "invalid email or password", http.StatusUnauthorized)
			return
		}

		sess, err := sessionRepo.Create(ctx, userdb.ID)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		setSessionCookie(w, sess)

		worker.Log(eventlogger.NewEvent(
			eventlogger.WithType("user.logged_in"),
			eventlogger.WithData(map[string]string{
				"user_id":    userdb.ID.String(),
				"session_id": sess.ID.String(),
			}),
		))

		respondJSON(w, http.StatusOK, userdb)
	})

	// Protected routes - require authentication
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth())

		r.Post("/user/logout", func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(session.CookieName)
			if err == nil {
				sessionRepo.Delete(r.Context(), cookie.Value)
			}

			http.SetCookie(w, &http.Cookie{
				Name:   session.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/user/profile", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())

			profile, err := userRepo.GetByID(r.Context(), userID)
			if err != nil {
				slog.Error("failed to fetch user", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			respondJSON(w, http.StatusOK, profile)
		})

		r.Post("/user/profile/name", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())
			var req struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			if err := userRepo.UpdateName(r.Context(), userID, req.Name); err != nil {
				slog.Error("failed to update name", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/user/profile/currency", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())
			var req struct {
				Currency string `json:"currency"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			err := userRepo.UpdateCurrency(r.Context(), userID, req.Currency)
			if err != nil {
				if errors.Is(err, user.ErrUnsupportedCurrency) {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				slog.Error("failed to update currency", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/friends", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())

			friends, err := userRepo.Friends(r.Context(), userID)
			if err != nil {
				slog.Error("failed to list friends", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			respondJSON(w, http.StatusOK, friends)
		})

		r.Get("/friends/requests", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())
			ctx := r.Context()

			incoming, err := userRepo.IncomingRequests(ctx, userID)
			if err != nil {
				slog.Error("failed to list incoming requests", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			outgoing, err := userRepo.OutgoingRequests(ctx, userID)
			if err != nil {
				slog.Error("failed to list outgoing requests", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			respondJSON(w, http.StatusOK, map[string]any{
				"incoming": incoming,
				"outgoing": outgoing,
			})
		})

		r.Post("/friends/requests", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())
			var req struct {
				Email string `json:"email"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			err := userRepo.SendFriendRequest(r.Context(), userID, req.Email)
			if err != nil {
				switch err {
				case user.ErrUserNotFound:
					http.Error(w, err.Error(), http.StatusNotFound)
				case user.ErrSelfRequest, user.ErrAlreadyFriends, user.ErrRequestPending:
					http.Error(w, err.Error(), http.StatusConflict)
				default:
					slog.Error("failed to send friend request", "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
				return
			}
			w.WriteHeader(http.StatusCreated)
		})

		r.Post("/friends/requests/{fromID}/accept", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())
			fromID, err := uuid.Parse(chi.URLParam(r, "fromID"))
			if err != nil {
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return
			}

			err = userRepo.AcceptFriendRequest(r.Context(), userID, fromID)
			if err != nil {
				if errors.Is(err, user.ErrNoPendingRequest) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				slog.Error("failed to accept friend request", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			worker.Log(eventlogger.NewEvent(
				eventlogger.WithType("friend.accepted"),
				eventlogger.WithData(ledger.FriendAcceptedEvent{
					UserID:   userID.String(),
					FriendID: fromID.String(),
				}),
			))
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/transactions", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())
			ctx := r.Context()

			var req struct {
				FriendID uuid.UUID `json:"friend_id"`
				Amount   string    `json:"amount"`
				Currency string    `json:"currency"`
				PaidBy   uuid.UUID `json:"paid_by"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			amount, err := decimal.NewFromString(req.Amount)
			if err != nil {
				http.Error(w, "invalid amount", http.StatusBadRequest)
				return
			}
			if req.Currency == "" {
				req.Currency = currency.Storage
			}

			// Normalize to the storage currency before persisting. An unknown
			// currency blocks the transaction instead of silently storing the
			// unconverted amount.
			stored, err := rates.Convert(ctx, amount, req.Currency, currency.Storage)
			if err != nil {
				if errors.Is(err, currency.ErrUnknownCurrency) {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				slog.Error("failed to convert amount", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			tx, err := ledgerStore.RecordTransaction(ctx, userID, req.FriendID, stored, req.PaidBy, time.Now().UTC())
			if err != nil {
				var partial *ledger.PartialWriteError
				switch {
				case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidParty):
					http.Error(w, err.Error(), http.StatusBadRequest)
				case errors.As(err, &partial):
					slog.Error("partial ledger write", "error", err, "transaction_id", tx.ID)
					worker.Log(eventlogger.NewEvent(
						eventlogger.WithType("transaction.partial_write"),
						eventlogger.WithData(ledger.PartialWriteEvent{
							TransactionID: tx.ID.String(),
							WrittenFor:    partial.WrittenFor.String(),
							FailedFor:     partial.FailedFor.String(),
							Reason:        partial.Err.Error(),
						}),
					))
					http.Error(w, "transaction partially recorded, please retry", http.StatusInternalServerError)
				default:
					slog.Error("failed to record transaction", "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
				return
			}

			worker.Log(eventlogger.NewEvent(
				eventlogger.WithType("transaction.recorded"),
				eventlogger.WithData(ledger.TransactionRecordedEvent{
					TransactionID:  tx.ID.String(),
					OwnerID:        userID.String(),
					CounterpartyID: req.FriendID.String(),
					PaidBy:         tx.PaidBy.String(),
					Amount:         tx.Amount.String(),
					EnteredAmount:  amount.String(),
					Currency:       req.Currency,
					OccurredAt:     tx.OccurredAt,
				}),
			))

			respondJSON(w, http.StatusCreated, tx)
		})

		r.Get("/friends/{friendID}/transactions", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())
			friendID, err := uuid.Parse(chi.URLParam(r, "friendID"))
			if err != nil {
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return
			}

			txs, err := ledgerStore.Transactions(r.Context(), userID, friendID)
			if err != nil {
				slog.Error("failed to load transactions", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			respondJSON(w, http.StatusOK, txs)
		})

		r.Get("/friends/{friendID}/balance", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())
			friendID, err := uuid.Parse(chi.URLParam(r, "friendID"))
			if err != nil {
				http.Error(w, "invalid user id", http.StatusBadRequest)
				return
			}

			balance, err := ledgerStore.NetBalance(r.Context(), userID, friendID)
			if err != nil {
				slog.Error("failed to compute balance", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			respondBalance(w, r, userRepo, rates, userID, balance)
		})

		r.Get("/balance", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.GetUserID(r.Context())

			balance, err := ledgerStore.AggregateBalance(r.Context(), userID)
			if err != nil {
				slog.Error("failed to compute total balance", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			respondBalance(w, r, userRepo, rates, userID, balance)
		})

		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			eventType := r.URL.Query().Get("type")
			if eventType == "" {
				http.Error(w, "type is required", http.StatusBadRequest)
				return
			}

			events, err := evtlogger.GetByType(r.Context(), eventType)
			if err != nil {
				slog.Error("failed to load events", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			respondJSON(w, http.StatusOK, events)
		})
	})

	slog.Info("server starting", "addr", cfg.ListenAddr)
	err = http.ListenAndServe(cfg.ListenAddr, router)

	// drain queued events before exiting; os.Exit would skip a defer
	worker.Shutdown()
	printErrorAndExit("server stopped", err)
}

// respondBalance converts a storage-currency balance into the viewer's display
// currency. If the display currency can't be converted, the balance goes out
// in the storage currency with converted=false rather than pretending rate 1.
func respondBalance(w http.ResponseWriter, r *http.Request, userRepo user.Repository, rates *currency.Service, userID uuid.UUID, balance decimal.Decimal) {
	viewer, err := userRepo.GetByID(r.Context(), userID)
	if err != nil || viewer == nil {
		slog.Error("failed to fetch viewer", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	display := viewer.PreferredCurrency
	converted, convErr := rates.Convert(r.Context(), balance, currency.Storage, display)
	if convErr != nil {
		slog.Warn("balance left in storage currency", "currency", display, "error", convErr)
		respondJSON(w, http.StatusOK, map[string]any{
			"amount":    balance,
			"currency":  currency.Storage,
			"converted": false,
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"amount":    converted,
		"currency":  display,
		"converted": true,
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func setSessionCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	})
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
