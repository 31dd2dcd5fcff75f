package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// LedgerServiceName is the fully-qualified name of the ledger service.
const LedgerServiceName = "groupsplit.v1.LedgerService"

// Procedure paths of the ledger service.
const (
	CreateGroupProcedure      = "/" + LedgerServiceName + "/CreateGroup"
	AddMembersProcedure       = "/" + LedgerServiceName + "/AddMembers"
	CreateExpenseProcedure    = "/" + LedgerServiceName + "/CreateExpense"
	GetGroupBalancesProcedure = "/" + LedgerServiceName + "/GetGroupBalances"
	GetProfileProcedure       = "/" + LedgerServiceName + "/GetProfile"
	ListGroupsProcedure       = "/" + LedgerServiceName + "/ListGroups"
	GetExpenseProcedure       = "/" + LedgerServiceName + "/GetExpense"
	ListActivitiesProcedure   = "/" + LedgerServiceName + "/ListActivities"
	SaveUserProcedure         = "/" + LedgerServiceName + "/SaveUser"
	WatchGroupProcedure       = "/" + LedgerServiceName + "/WatchGroup"
	WatchProfileProcedure     = "/" + LedgerServiceName + "/WatchProfile"
)

// NewLedgerServiceHandler builds an HTTP handler for every ledger procedure
// and returns the path to mount it on.
func NewLedgerServiceHandler(svc *LedgerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	handlers := map[string]http.Handler{
		CreateGroupProcedure:      connect.NewUnaryHandler(CreateGroupProcedure, svc.CreateGroup, opts...),
		AddMembersProcedure:       connect.NewUnaryHandler(AddMembersProcedure, svc.AddMembers, opts...),
		CreateExpenseProcedure:    connect.NewUnaryHandler(CreateExpenseProcedure, svc.CreateExpense, opts...),
		GetGroupBalancesProcedure: connect.NewUnaryHandler(GetGroupBalancesProcedure, svc.GetGroupBalances, opts...),
		GetProfileProcedure:       connect.NewUnaryHandler(GetProfileProcedure, svc.GetProfile, opts...),
		ListGroupsProcedure:       connect.NewUnaryHandler(ListGroupsProcedure, svc.ListGroups, opts...),
		GetExpenseProcedure:       connect.NewUnaryHandler(GetExpenseProcedure, svc.GetExpense, opts...),
		ListActivitiesProcedure:   connect.NewUnaryHandler(ListActivitiesProcedure, svc.ListActivities, opts...),
		SaveUserProcedure:         connect.NewUnaryHandler(SaveUserProcedure, svc.SaveUser, opts...),
		WatchGroupProcedure:       connect.NewServerStreamHandler(WatchGroupProcedure, svc.WatchGroup, opts...),
		WatchProfileProcedure:     connect.NewServerStreamHandler(WatchProfileProcedure, svc.WatchProfile, opts...),
	}

	return "/" + LedgerServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// LedgerServiceClient calls the ledger service.
type LedgerServiceClient struct {
	createGroup      *connect.Client[CreateGroupRequest, CreateGroupResponse]
	addMembers       *connect.Client[AddMembersRequest, AddMembersResponse]
	createExpense    *connect.Client[CreateExpenseRequest, CreateExpenseResponse]
	getGroupBalances *connect.Client[GetGroupBalancesRequest, GetGroupBalancesResponse]
	getProfile       *connect.Client[GetProfileRequest, GetProfileResponse]
	listGroups       *connect.Client[ListGroupsRequest, ListGroupsResponse]
	getExpense       *connect.Client[GetExpenseRequest, GetExpenseResponse]
	listActivities   *connect.Client[ListActivitiesRequest, ListActivitiesResponse]
	saveUser         *connect.Client[SaveUserRequest, SaveUserResponse]
	watchGroup       *connect.Client[WatchGroupRequest, WatchGroupResponse]
	watchProfile     *connect.Client[WatchProfileRequest, WatchProfileResponse]
}

// NewLedgerServiceClient creates a client for the service at baseURL.
func NewLedgerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LedgerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &LedgerServiceClient{
		createGroup:      connect.NewClient[CreateGroupRequest, CreateGroupResponse](httpClient, baseURL+CreateGroupProcedure, opts...),
		addMembers:       connect.NewClient[AddMembersRequest, AddMembersResponse](httpClient, baseURL+AddMembersProcedure, opts...),
		createExpense:    connect.NewClient[CreateExpenseRequest, CreateExpenseResponse](httpClient, baseURL+CreateExpenseProcedure, opts...),
		getGroupBalances: connect.NewClient[GetGroupBalancesRequest, GetGroupBalancesResponse](httpClient, baseURL+GetGroupBalancesProcedure, opts...),
		getProfile:       connect.NewClient[GetProfileRequest, GetProfileResponse](httpClient, baseURL+GetProfileProcedure, opts...),
		listGroups:       connect.NewClient[ListGroupsRequest, ListGroupsResponse](httpClient, baseURL+ListGroupsProcedure, opts...),
		getExpense:       connect.NewClient[GetExpenseRequest, GetExpenseResponse](httpClient, baseURL+GetExpenseProcedure, opts...),
		listActivities:   connect.NewClient[ListActivitiesRequest, ListActivitiesResponse](httpClient, baseURL+ListActivitiesProcedure, opts...),
		saveUser:         connect.NewClient[SaveUserRequest, SaveUserResponse](httpClient, baseURL+SaveUserProcedure, opts...),
		watchGroup:       connect.NewClient[WatchGroupRequest, WatchGroupResponse](httpClient, baseURL+WatchGroupProcedure, opts...),
		watchProfile:     connect.NewClient[WatchProfileRequest, WatchProfileResponse](httpClient, baseURL+WatchProfileProcedure, opts...),
	}
}

func (c *LedgerServiceClient) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) AddMembers(ctx context.Context, req *connect.Request[AddMembersRequest]) (*connect.Response[AddMembersResponse], error) {
	return c.addMembers.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[CreateExpenseResponse], error) {
	return c.createExpense.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) GetGroupBalances(ctx context.Context, req *connect.Request[GetGroupBalancesRequest]) (*connect.Response[GetGroupBalancesResponse], error) {
	return c.getGroupBalances.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) GetProfile(ctx context.Context, req *connect.Request[GetProfileRequest]) (*connect.Response[GetProfileResponse], error) {
	return c.getProfile.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) ListGroups(ctx context.Context, req *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error) {
	return c.listGroups.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) GetExpense(ctx context.Context, req *connect.Request[GetExpenseRequest]) (*connect.Response[GetExpenseResponse], error) {
	return c.getExpense.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) ListActivities(ctx context.Context, req *connect.Request[ListActivitiesRequest]) (*connect.Response[ListActivitiesResponse], error) {
	return c.listActivities.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) SaveUser(ctx context.Context, req *connect.Request[SaveUserRequest]) (*connect.Response[SaveUserResponse], error) {
	return c.saveUser.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) WatchGroup(ctx context.Context, req *connect.Request[WatchGroupRequest]) (*connect.ServerStreamForClient[WatchGroupResponse], error) {
	return c.watchGroup.CallServerStream(ctx, req)
}

func (c *LedgerServiceClient) WatchProfile(ctx context.Context, req *connect.Request[WatchProfileRequest]) (*connect.ServerStreamForClient[WatchProfileResponse], error) {
	return c.watchProfile.CallServerStream(ctx, req)
}
