package handlers

import "github.com/voxloop/trialguard/pkg/response"

// Concrete envelope aliases so swag can resolve generic responses.
type RespOK = response.APIResponse[any]
