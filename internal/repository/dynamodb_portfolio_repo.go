package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultDynamoDBTable は既定のテーブル名。パーティションキーemail、ソートキーsymbol。
const DefaultDynamoDBTable = "UserPortfolios"

// DynamoDBAPI はDynamoDBPortfolioRepoが使うDynamoDBクライアントの部分集合。
// *dynamodb.Client が満たす。
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBPortfolioRepo はDynamoDBを使用したウォッチリストリポジトリ。
type DynamoDBPortfolioRepo struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoDBPortfolioRepo はDynamoDBPortfolioRepoを生成する。
func NewDynamoDBPortfolioRepo(client DynamoDBAPI, table string) *DynamoDBPortfolioRepo {
	if table == "" {
		table = DefaultDynamoDBTable
	}
	return &DynamoDBPortfolioRepo{client: client, table: table}
}

// Put はシンボルを追加する。登録済みの項目は条件付き書き込みで上書きしない。
func (r *DynamoDBPortfolioRepo) Put(ctx context.Context, email, symbol string) error {
	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item: map[string]types.AttributeValue{
			"email":      &types.AttributeValueMemberS{Value: email},
			"symbol":     &types.AttributeValueMemberS{Value: symbol},
			"created_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(symbol)"),
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return nil
		}
		return fmt.Errorf("failed to put portfolio item: %w", err)
	}
	return nil
}

// ListSymbols は指定ユーザーの全シンボルを昇順で返す。ページングは全件読み切る。
func (r *DynamoDBPortfolioRepo) ListSymbols(ctx context.Context, email string) ([]string, error) {
	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		ProjectionExpression: aws.String("symbol"),
		ConsistentRead:       aws.Bool(true),
	})

	symbols := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query portfolio items: %w", err)
		}
		for _, item := range page.Items {
			s, ok := item["symbol"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			symbols = append(symbols, s.Value)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}
