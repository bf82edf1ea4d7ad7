package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Contract 合约工具类, 绑定地址与ABI
type Contract struct {
	address common.Address
	abi     abi.ABI
	name    string
	bound   *bind.BoundContract
}

// LoadABI 从文件加载ABI, 路径为空时使用内置ABI
func LoadABI(path, fallback string) (abi.ABI, error) {
	if path == "" {
		return abi.JSON(strings.NewReader(fallback))
	}

	abiData, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to load ABI from %s: %w", path, err)
	}
	return parseABI(abiData)
}

func parseABI(abiData []byte) (abi.ABI, error) {
	// 尝试解析为完整的编译输出文件
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}

	if err := json.Unmarshal(abiData, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsedABI, err := abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
		return parsedABI, nil
	}

	// 不是完整编译输出时直接解析为ABI数组
	parsedABI, err := abi.JSON(bytes.NewReader(abiData))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsedABI, nil
}

// NewContract 创建合约实例
func NewContract(backend Backend, name string, address common.Address, parsedABI abi.ABI) *Contract {
	return &Contract{
		address: address,
		abi:     parsedABI,
		name:    name,
		bound:   bind.NewBoundContract(address, parsedABI, backend, backend, backend),
	}
}

// GetAddress 获取合约地址
func (c *Contract) GetAddress() common.Address {
	return c.address
}

// GetName 获取合约名称
func (c *Contract) GetName() string {
	return c.name
}

func (c *Contract) call(opts *bind.CallOpts, method string, params ...interface{}) (interface{}, error) {
	var out []interface{}
	if err := c.bound.Call(opts, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.name, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s.%s: empty result", c.name, method)
	}
	return out[0], nil
}

func (c *Contract) callBig(opts *bind.CallOpts, method string, params ...interface{}) (*big.Int, error) {
	v, err := c.call(opts, method, params...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s: unexpected result type %T", c.name, method, v)
	}
	return n, nil
}

func (c *Contract) callAddress(opts *bind.CallOpts, method string, params ...interface{}) (common.Address, error) {
	v, err := c.call(opts, method, params...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s.%s: unexpected result type %T", c.name, method, v)
	}
	return addr, nil
}

func (c *Contract) callBool(opts *bind.CallOpts, method string, params ...interface{}) (bool, error) {
	v, err := c.call(opts, method, params...)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s.%s: unexpected result type %T", c.name, method, v)
	}
	return b, nil
}
