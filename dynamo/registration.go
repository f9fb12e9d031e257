package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/pulsefest/registration/events"
	"github.com/pulsefest/registration/registration"
)

var _ registration.Repository = &DB{}

type registrationDynamo struct {
	PK string
	SK string

	ID               uuid.UUID
	Version          int
	EventID          uuid.UUID
	DisplayName      string
	Participants     []registration.Participant
	Amount           int64
	Currency         string
	Status           registration.Status
	CreatedAt        time.Time
	PaidAt           *time.Time
	GatewayOrderID   string
	GatewayPaymentID string
}

// leaderDynamo is the idempotency item claiming a leader's slot on an event.
// Its existence is what makes drafting resumable instead of duplicating.
type leaderDynamo struct {
	PK string
	SK string

	RegistrationID uuid.UUID
}

// orderDynamo points a gateway order back at its registration so webhook
// settlement can find it.
type orderDynamo struct {
	PK string
	SK string

	RegistrationID uuid.UUID
}

const (
	registrationEntityName = "REGISTRATION"
	leaderEntityName       = "LEADER"
	orderEntityName        = "ORDER"
)

func registrationPK(id uuid.UUID) string {
	return fmt.Sprintf("%s#%s", registrationEntityName, id)
}

func registrationSK(id uuid.UUID) string {
	return fmt.Sprintf("%s#%s", registrationEntityName, id)
}

func leaderPK(eventID uuid.UUID) string {
	return eventPK(eventID)
}

func leaderSK(leaderEmail string) string {
	return fmt.Sprintf("%s#%s", leaderEntityName, strings.ToLower(leaderEmail))
}

func orderPK(orderID string) string {
	return fmt.Sprintf("%s#%s", orderEntityName, orderID)
}

func orderSK(orderID string) string {
	return fmt.Sprintf("%s#%s", orderEntityName, orderID)
}

func registrationToDynamo(reg registration.Registration) registrationDynamo {
	return registrationDynamo{
		PK:               registrationPK(reg.ID),
		SK:               registrationSK(reg.ID),
		ID:               reg.ID,
		Version:          reg.Version,
		EventID:          reg.EventID,
		DisplayName:      reg.DisplayName,
		Participants:     reg.Participants,
		Amount:           reg.Amount,
		Currency:         reg.Currency,
		Status:           reg.Status,
		CreatedAt:        reg.CreatedAt,
		PaidAt:           reg.PaidAt,
		GatewayOrderID:   reg.GatewayOrderID,
		GatewayPaymentID: reg.GatewayPaymentID,
	}
}

func dynamoToRegistration(dynReg registrationDynamo) registration.Registration {
	return registration.Registration{
		ID:               dynReg.ID,
		Version:          dynReg.Version,
		EventID:          dynReg.EventID,
		DisplayName:      dynReg.DisplayName,
		Participants:     dynReg.Participants,
		Amount:           dynReg.Amount,
		Currency:         dynReg.Currency,
		Status:           dynReg.Status,
		CreatedAt:        dynReg.CreatedAt,
		PaidAt:           dynReg.PaidAt,
		GatewayOrderID:   dynReg.GatewayOrderID,
		GatewayPaymentID: dynReg.GatewayPaymentID,
	}
}

// CreateRegistration writes the registration, the leader's idempotency claim,
// and the bumped event counters in one transaction. The leader claim failing
// its not-exists condition is how a concurrent duplicate draft loses.
func (d *DB) CreateRegistration(ctx context.Context, reg registration.Registration, event events.Event) error {
	dynamoReg := registrationToDynamo(reg)

	regItem, err := attributevalue.MarshalMap(dynamoReg)
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate registration to dynamo model", err)
	}
	regExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(newEntityVersionConditional(dynamoReg.Version)))

	leaderItem, err := attributevalue.MarshalMap(leaderDynamo{
		PK:             leaderPK(reg.EventID),
		SK:             leaderSK(reg.LeaderEmail()),
		RegistrationID: reg.ID,
	})
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate leader claim to dynamo model", err)
	}
	leaderExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()))

	dynamoEvent := newEventDynamo(event)

	eventItem, err := attributevalue.MarshalMap(dynamoEvent)
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate event to dynamo model", err)
	}
	eventExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(existingEntityVersionConditional(event.Version)))

	_, err = d.dynamoClient.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      regItem,
					ConditionExpression:       regExpr.Condition(),
					ExpressionAttributeNames:  regExpr.Names(),
					ExpressionAttributeValues: regExpr.Values(),
				},
			},
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      leaderItem,
					ConditionExpression:       leaderExpr.Condition(),
					ExpressionAttributeNames:  leaderExpr.Names(),
				},
			},
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      eventItem,
					ConditionExpression:       eventExpr.Condition(),
					ExpressionAttributeNames:  eventExpr.Names(),
					ExpressionAttributeValues: eventExpr.Values(),
				},
			},
		},
	})
	if err != nil {
		var transactionFailedErr *types.TransactionCanceledException
		if errors.As(err, &transactionFailedErr) {
			reasons := transactionFailedErr.CancellationReasons
			if len(reasons) == 3 && conditionFailed(reasons[1]) {
				return registration.NewRegistrationAlreadyExistsError(
					fmt.Sprintf("Leader %q already has a registration for event %q", reg.LeaderEmail(), reg.EventID), err)
			}
			if len(reasons) == 3 && conditionFailed(reasons[2]) {
				return registration.NewVersionConflictError(
					fmt.Sprintf("Event %q was modified concurrently", reg.EventID), err)
			}
			return registration.NewFailedToWriteError("Transaction cancelled", err)
		}
		return registration.NewFailedToWriteError("Failed TransactWriteItems call", err)
	}

	return nil
}

// CreateRegistrationReplacing is the retry-after-FAILED variant of
// CreateRegistration: the leader claim is repointed at the fresh registration
// conditional on still holding the failed one, so concurrent retries collapse
// to a single winner. The failed registration item stays behind as history.
func (d *DB) CreateRegistrationReplacing(ctx context.Context, reg registration.Registration, replacedID uuid.UUID, event events.Event) error {
	dynamoReg := registrationToDynamo(reg)

	regItem, err := attributevalue.MarshalMap(dynamoReg)
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate registration to dynamo model", err)
	}
	regExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(newEntityVersionConditional(dynamoReg.Version)))

	leaderItem, err := attributevalue.MarshalMap(leaderDynamo{
		PK:             leaderPK(reg.EventID),
		SK:             leaderSK(reg.LeaderEmail()),
		RegistrationID: reg.ID,
	})
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate leader claim to dynamo model", err)
	}
	leaderExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(expression.Name("RegistrationID").Equal(expression.Value(replacedID.String()))))

	eventItem, err := attributevalue.MarshalMap(newEventDynamo(event))
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate event to dynamo model", err)
	}
	eventExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(existingEntityVersionConditional(event.Version)))

	_, err = d.dynamoClient.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      regItem,
					ConditionExpression:       regExpr.Condition(),
					ExpressionAttributeNames:  regExpr.Names(),
					ExpressionAttributeValues: regExpr.Values(),
				},
			},
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      leaderItem,
					ConditionExpression:       leaderExpr.Condition(),
					ExpressionAttributeNames:  leaderExpr.Names(),
					ExpressionAttributeValues: leaderExpr.Values(),
				},
			},
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      eventItem,
					ConditionExpression:       eventExpr.Condition(),
					ExpressionAttributeNames:  eventExpr.Names(),
					ExpressionAttributeValues: eventExpr.Values(),
				},
			},
		},
	})
	if err != nil {
		var transactionFailedErr *types.TransactionCanceledException
		if errors.As(err, &transactionFailedErr) {
			reasons := transactionFailedErr.CancellationReasons
			if len(reasons) == 3 && conditionFailed(reasons[1]) {
				return registration.NewRegistrationAlreadyExistsError(
					fmt.Sprintf("Leader %q slot for event %q no longer points at %q", reg.LeaderEmail(), reg.EventID, replacedID), err)
			}
			if len(reasons) == 3 && conditionFailed(reasons[2]) {
				return registration.NewVersionConflictError(
					fmt.Sprintf("Event %q was modified concurrently", reg.EventID), err)
			}
			return registration.NewFailedToWriteError("Transaction cancelled", err)
		}
		return registration.NewFailedToWriteError("Failed TransactWriteItems call", err)
	}

	return nil
}

func conditionFailed(reason types.CancellationReason) bool {
	return reason.Code != nil && *reason.Code == "ConditionalCheckFailed"
}

func (d *DB) GetRegistration(ctx context.Context, id uuid.UUID) (registration.Registration, error) {
	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: registrationPK(id)},
			"SK": &types.AttributeValueMemberS{Value: registrationSK(id)},
		},
	})
	if err != nil {
		return registration.Registration{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch registration with id %q", id), err)
	}

	if len(resp.Item) == 0 {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("Registration with id %q not found", id), nil)
	}

	var dynReg registrationDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &dynReg)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal registration from dynamo: %s", err))
	}

	return dynamoToRegistration(dynReg), nil
}

func (d *DB) GetRegistrationByLeader(ctx context.Context, eventID uuid.UUID, leaderEmail string) (registration.Registration, error) {
	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: leaderPK(eventID)},
			"SK": &types.AttributeValueMemberS{Value: leaderSK(leaderEmail)},
		},
	})
	if err != nil {
		return registration.Registration{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch leader claim for %q", leaderEmail), err)
	}

	if len(resp.Item) == 0 {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(
			fmt.Sprintf("No registration for leader %q on event %q", leaderEmail, eventID), nil)
	}

	var claim leaderDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &claim)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal leader claim from dynamo: %s", err))
	}

	return d.GetRegistration(ctx, claim.RegistrationID)
}

func (d *DB) GetRegistrationByOrderID(ctx context.Context, orderID string) (registration.Registration, error) {
	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: orderPK(orderID)},
			"SK": &types.AttributeValueMemberS{Value: orderSK(orderID)},
		},
	})
	if err != nil {
		return registration.Registration{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch order index for %q", orderID), err)
	}

	if len(resp.Item) == 0 {
		return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(
			fmt.Sprintf("No registration for order %q", orderID), nil)
	}

	var idx orderDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &idx)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal order index from dynamo: %s", err))
	}

	return d.GetRegistration(ctx, idx.RegistrationID)
}

// UpdateRegistration writes the registration conditional on the stored
// version. When the registration carries a gateway order id the order index
// item rides along in the same transaction, so webhook lookups never race the
// order attach.
func (d *DB) UpdateRegistration(ctx context.Context, reg registration.Registration) error {
	dynamoReg := registrationToDynamo(reg)

	regItem, err := attributevalue.MarshalMap(dynamoReg)
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate registration to dynamo model", err)
	}
	regExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(existingEntityVersionConditional(dynamoReg.Version)))

	if reg.GatewayOrderID == "" {
		_, err = d.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 aws.String(d.tableName),
			Item:                      regItem,
			ConditionExpression:       regExpr.Condition(),
			ExpressionAttributeNames:  regExpr.Names(),
			ExpressionAttributeValues: regExpr.Values(),
		})
		if err != nil {
			var condCheckFailedErr *types.ConditionalCheckFailedException
			if errors.As(err, &condCheckFailedErr) {
				return registration.NewVersionConflictError(fmt.Sprintf("Registration %q was modified concurrently", reg.ID), err)
			}
			return registration.NewFailedToWriteError("Failed PutItem call", err)
		}
		return nil
	}

	orderItem, err := attributevalue.MarshalMap(orderDynamo{
		PK:             orderPK(reg.GatewayOrderID),
		SK:             orderSK(reg.GatewayOrderID),
		RegistrationID: reg.ID,
	})
	if err != nil {
		return registration.NewFailedToTranslateToDBModelError("Failed to translate order index to dynamo model", err)
	}

	_, err = d.dynamoClient.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                 aws.String(d.tableName),
					Item:                      regItem,
					ConditionExpression:       regExpr.Condition(),
					ExpressionAttributeNames:  regExpr.Names(),
					ExpressionAttributeValues: regExpr.Values(),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(d.tableName),
					Item:      orderItem,
				},
			},
		},
	})
	if err != nil {
		var transactionFailedErr *types.TransactionCanceledException
		if errors.As(err, &transactionFailedErr) {
			reasons := transactionFailedErr.CancellationReasons
			if len(reasons) == 2 && conditionFailed(reasons[0]) {
				return registration.NewVersionConflictError(fmt.Sprintf("Registration %q was modified concurrently", reg.ID), err)
			}
			return registration.NewFailedToWriteError("Transaction cancelled", err)
		}
		return registration.NewFailedToWriteError("Failed TransactWriteItems call", err)
	}

	return nil
}
