// Package secrets はAWS SSM Parameter Storeからの秘密情報の取得を提供する。
package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMAPI はParameterStoreが使用するSSMクライアントの操作。
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParameterStore はSSM Parameter Storeから復号済みの値を取得する。
type ParameterStore struct {
	client SSMAPI
}

// NewParameterStore はaws.ConfigからParameterStoreを生成する。
func NewParameterStore(cfg aws.Config) *ParameterStore {
	return &ParameterStore{client: ssm.NewFromConfig(cfg)}
}

// NewParameterStoreWithClient は任意のSSMAPI実装でParameterStoreを生成する。
func NewParameterStoreWithClient(client SSMAPI) *ParameterStore {
	return &ParameterStore{client: client}
}

// GetSecret は指定名のパラメータをWithDecryptionで取得する。
func (ps *ParameterStore) GetSecret(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}

	input := &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	}

	result, err := ps.client.GetParameter(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}

	return *result.Parameter.Value, nil
}
