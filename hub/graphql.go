package hub

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/clutchride/hub/auth"
	"github.com/tidwall/gjson"
)

const schemaSDL = `
schema {
	query: Query
	mutation: Mutation
}

type Query {
	# The next nonce for address, as reported by the node. Falls back to 1 when the node can't say, so it is only a hint.
	nextNonce(address: String!): Int!
}

type Mutation {
	generateJwtToken(publicKey: String!): Token!
	createRideRequest(pickupLocation: String!, dropoffLocation: String!): RideRequest
	sendRawTransaction(rawTransaction: String!): String
}

type Token {
	token: String!
	expiresAt: String!
}

type RideRequest {
	pickupLocation: String!
	dropoffLocation: String!
	userId: String!
	transactionHash: String
}
`

var errUnauthenticated = errors.New("unauthenticated: a valid bearer token is required")

type resolver struct {
	s *Server
}

func (r *resolver) NextNonce(ctx context.Context, args struct{ Address string }) (int32, error) {
	nonce := r.s.node.GetNextNonce(ctx, args.Address)
	if nonce > math.MaxInt32 {
		return 0, fmt.Errorf("nonce %d does not fit in a GraphQL Int", nonce)
	}
	return int32(nonce), nil
}

func (r *resolver) GenerateJwtToken(args struct{ PublicKey string }) (*tokenResolver, error) {
	token, expiresAt, err := auth.GenerateToken(args.PublicKey, r.s.tokenTTL, r.s.jwtSecret, r.s.now())
	if err != nil {
		r.s.logger.Debugw("failed to generate token", "Error", err)
		return nil, err
	}
	return &tokenResolver{token: token, expiresAt: expiresAt}, nil
}

func (r *resolver) CreateRideRequest(ctx context.Context, args struct {
	PickupLocation  string
	DropoffLocation string
}) (*rideRequestResolver, error) {
	claims := claimsFromContext(ctx)
	if claims == nil {
		return nil, errUnauthenticated
	}

	nonce := r.s.node.GetNextNonce(ctx, claims.PK)
	result, err := r.s.node.Call(ctx, "send_transaction", map[string]any{
		"from":  claims.PK,
		"nonce": nonce,
		"data": map[string]any{
			"function_call_type": "CreateRideRequest",
			"arguments": map[string]string{
				"pickup_location":  args.PickupLocation,
				"dropoff_location": args.DropoffLocation,
			},
		},
	})
	if err != nil {
		r.s.logger.Errorw("failed to send ride request", "PK", claims.PK, "Error", err)
		return nil, fmt.Errorf("sending ride request: %w", err)
	}

	ride := &rideRequestResolver{
		pickupLocation:  args.PickupLocation,
		dropoffLocation: args.DropoffLocation,
		userID:          claims.PK,
	}
	if hash := transactionHash(result); hash != "" {
		ride.transactionHash = &hash
	}
	return ride, nil
}

func (r *resolver) SendRawTransaction(ctx context.Context, args struct{ RawTransaction string }) (*string, error) {
	if claimsFromContext(ctx) == nil {
		return nil, errUnauthenticated
	}
	result, err := r.s.node.Call(ctx, "send_raw_transaction", args.RawTransaction)
	if err != nil {
		r.s.logger.Errorw("failed to send raw transaction", "Error", err)
		return nil, fmt.Errorf("sending raw transaction: %w", err)
	}
	hash := transactionHash(result)
	if hash == "" {
		raw := string(result)
		return &raw, nil
	}
	return &hash, nil
}

// transactionHash finds the transaction hash in a node result, which is either a bare string or an object with tx_hash.
func transactionHash(result []byte) string {
	r := gjson.ParseBytes(result)
	if r.Type == gjson.String {
		return r.Str
	}
	if h := r.Get("tx_hash"); h.Type == gjson.String {
		return h.Str
	}
	return ""
}

type tokenResolver struct {
	token     string
	expiresAt time.Time
}

func (t *tokenResolver) Token() string { return t.token }

func (t *tokenResolver) ExpiresAt() string { return t.expiresAt.UTC().Format(time.RFC3339) }

type rideRequestResolver struct {
	pickupLocation  string
	dropoffLocation string
	userID          string
	transactionHash *string
}

func (r *rideRequestResolver) PickupLocation() string { return r.pickupLocation }

func (r *rideRequestResolver) DropoffLocation() string { return r.dropoffLocation }

func (r *rideRequestResolver) UserID() string { return r.userID }

func (r *rideRequestResolver) TransactionHash() *string { return r.transactionHash }
