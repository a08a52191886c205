package grpc

import (
	"os"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messageBlock = regexp.MustCompile(`(?s)message (\w+) \{(.*?)\n?\}`)

// readContract 讀取 ledger.proto，回傳檔案內容與每個 message 的欄位名稱
func readContract(t *testing.T) (string, map[string][]string) {
	t.Helper()
	raw, err := os.ReadFile("ledger.proto")
	require.NoError(t, err)
	content := string(raw)

	messages := make(map[string][]string)
	for _, m := range messageBlock.FindAllStringSubmatch(content, -1) {
		var fields []string
		for _, line := range strings.Split(m[2], "\n") {
			parts := strings.Fields(line)
			if len(parts) >= 4 && parts[len(parts)-2] == "=" {
				fields = append(fields, parts[len(parts)-3])
			}
		}
		messages[m[1]] = fields
	}
	return content, messages
}

func TestContract_MethodsMatchServiceDesc(t *testing.T) {
	content, _ := readContract(t)
	assert.Contains(t, content, "package ledger.v1;")
	assert.Contains(t, content, "service LedgerService {")
	assert.Equal(t, "ledger.v1.LedgerService", LedgerServiceDesc.ServiceName)
	assert.Equal(t, "ledger.proto", LedgerServiceDesc.Metadata)

	rpcs := regexp.MustCompile(`rpc (\w+)\(`).FindAllStringSubmatch(content, -1)
	require.Len(t, rpcs, len(LedgerServiceDesc.Methods))
	for _, m := range LedgerServiceDesc.Methods {
		assert.Contains(t, content, "rpc "+m.MethodName+"(", m.MethodName)
	}
}

func TestContract_FieldsMatchJSONTags(t *testing.T) {
	_, messages := readContract(t)

	types := []any{
		CreateAccountRequest{},
		AccountRequest{},
		ListAccountsRequest{},
		AmountRequest{},
		TransferRequest{},
		Account{},
		Transaction{},
		AccountResponse{},
		ListAccountsResponse{},
		DeleteAccountResponse{},
		TransferResponse{},
		ListTransactionsResponse{},
	}
	require.Len(t, messages, len(types))

	for _, v := range types {
		typ := reflect.TypeOf(v)
		fields, ok := messages[typ.Name()]
		if !assert.True(t, ok, "message %s missing", typ.Name()) {
			continue
		}
		var tags []string
		for i := 0; i < typ.NumField(); i++ {
			tags = append(tags, strings.Split(typ.Field(i).Tag.Get("json"), ",")[0])
		}
		assert.Equal(t, tags, fields, typ.Name())
	}
}
