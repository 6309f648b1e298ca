package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/director74/macro_saga/notification-service/internal/entity"
	"github.com/director74/macro_saga/pkg/ledger"
	"github.com/director74/macro_saga/pkg/saga"
)

const defaultListLimit = 10

// NotificationRepository интерфейс для работы с хранилищем нотификаций
type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
	GetByID(ctx context.Context, id string) (*entity.Notification, error)
	List(ctx context.Context, filter entity.NotificationFilter) ([]entity.Notification, int64, error)
}

// CommandExecutor идемпотентное выполнение команды (ledger.Executor)
type CommandExecutor interface {
	Execute(ctx context.Context, event saga.Event, mutation ledger.Mutation) (saga.Event, error)
}

// NotificationUseCase отправляет письма по командам саг и отвечает NOTIFIED
type NotificationUseCase struct {
	executor    CommandExecutor
	repo        NotificationRepository
	emailSender EmailSender
	publisher   saga.Publisher
	defaultFrom string
	validate    *validator.Validate
	now         func() time.Time
	newID       func() string
	logger      zerolog.Logger
}

func NewNotificationUseCase(executor CommandExecutor, repo NotificationRepository, emailSender EmailSender, publisher saga.Publisher, defaultFrom string, logger zerolog.Logger) *NotificationUseCase {
	v := validator.New()
	v.SetTagName("binding")

	return &NotificationUseCase{
		executor:    executor,
		repo:        repo,
		emailSender: emailSender,
		publisher:   publisher,
		defaultFrom: defaultFrom,
		validate:    v,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:       uuid.NewString,
		logger:      logger,
	}
}

// Handle обрабатывает команду из PROFILE_REQUEST_EMAIL_API_TOPIC. Письмо по одной
// команде уходит один раз: повторная доставка получает сохраненный ответ.
func (uc *NotificationUseCase) Handle(ctx context.Context, event saga.Event) error {
	log := uc.logger.With().Str("saga_id", event.SagaID).Str("event_type", string(event.EventType)).Logger()

	if event.EventType != saga.EventNotifyMacroCreate && event.EventType != saga.EventNotifyMacroUpdate {
		log.Warn().Msg("Неизвестный тип команды, сообщение отброшено")
		return nil
	}

	var payload entity.MacroEditNotificationEvent
	if err := json.Unmarshal([]byte(event.EventPayload), &payload); err != nil {
		log.Error().Err(err).Msg("Некорректная полезная нагрузка команды, сообщение отброшено")
		return nil
	}
	if err := uc.validate.Struct(payload); err != nil {
		log.Error().Err(err).Msg("Неполная полезная нагрузка команды, сообщение отброшено")
		return nil
	}

	reply, err := uc.executor.Execute(ctx, event, uc.notify(event, payload))
	if err != nil {
		return err
	}

	if event.ReplyTo == "" {
		log.Warn().Msg("В команде не указан replyTo, ответ не отправлен")
		return nil
	}
	if err := uc.publisher.Publish(ctx, event.ReplyTo, reply); err != nil {
		return fmt.Errorf("ошибка отправки ответа на %s: %w", event.EventType, err)
	}

	log.Info().Msg("Ответ NOTIFIED отправлен")
	return nil
}

// notify ошибка отправки откатывает запись уведомления, сообщение будет доставлено повторно
func (uc *NotificationUseCase) notify(event saga.Event, payload entity.MacroEditNotificationEvent) ledger.Mutation {
	return func(ctx context.Context) (ledger.Result, error) {
		email := BuildEmail(event.EventType, payload)
		if email.From == "" {
			email.From = uc.defaultFrom
		}

		notification := &entity.Notification{
			ID:         uc.newID(),
			SagaID:     event.SagaID,
			EventType:  string(event.EventType),
			FromEmail:  email.From,
			ToEmail:    email.To,
			Subject:    email.Subject,
			Body:       email.Body,
			Status:     entity.NotificationStatusSent,
			CreateDate: uc.now(),
		}
		if err := uc.repo.Create(ctx, notification); err != nil {
			return ledger.Result{}, err
		}

		if err := uc.emailSender.Send(ctx, email); err != nil {
			return ledger.Result{}, err
		}

		reply, err := json.Marshal(map[string]string{"notificationId": notification.ID})
		if err != nil {
			return ledger.Result{}, err
		}
		return ledger.Result{Outcome: saga.OutcomeNotified, Payload: string(reply)}, nil
	}
}

// BuildEmail текст письма об изменении макроса
func BuildEmail(eventType saga.EventType, payload entity.MacroEditNotificationEvent) Email {
	action := "создан"
	if eventType == saga.EventNotifyMacroUpdate {
		action = "изменен"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "В приложении %s %s макрос.\n\n", payload.AppName, action)
	fmt.Fprintf(&body, "Область применения: %s\n", payload.BusinessUseTypeName)
	fmt.Fprintf(&body, "Тип макроса: %s\n", payload.MacroTypeCode)
	fmt.Fprintf(&body, "Код макроса: %s\n\n", payload.MacroCode)
	body.WriteString(payload.MacroText)
	body.WriteString("\n")

	return Email{
		From:    payload.FromEmail,
		To:      payload.ToEmail,
		Subject: fmt.Sprintf("%s: %s макрос %s", payload.AppName, action, payload.MacroCode),
		Body:    body.String(),
	}
}

func (uc *NotificationUseCase) GetNotification(ctx context.Context, id string) (*entity.Notification, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *NotificationUseCase) ListNotifications(ctx context.Context, filter entity.NotificationFilter) (*entity.ListNotificationsResponse, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}

	notifications, total, err := uc.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []entity.Notification{}
	}

	return &entity.ListNotificationsResponse{
		Notifications: notifications,
		Total:         total,
	}, nil
}
