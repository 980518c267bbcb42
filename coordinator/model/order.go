// Copyright 2025 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"bytes"
	"encoding/json"
)

type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// IsBid reports whether the side rests on the bid book.
func (s Side) IsBid() bool {
	return s == SideBuy
}

func (s Side) String() string {
	return sideToString[s]
}

var sideToString = map[Side]string{
	SideUnknown: "Unknown",
	SideBuy:     "Buy",
	SideSell:    "Sell",
}

var toSide = map[string]Side{
	"Unknown": SideUnknown,
	"Buy":     SideBuy,
	"Sell":    SideSell,
}

// MarshalJSON marshals the enum as a quoted json string
func (s Side) MarshalJSON() ([]byte, error) {
	buffer := bytes.NewBufferString(`"`)
	buffer.WriteString(sideToString[s])
	buffer.WriteString(`"`)
	return buffer.Bytes(), nil
}

// UnmarshalJSON unmarshals a quoted json string to the enum value
func (s *Side) UnmarshalJSON(b []byte) error {
	var j string
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	// If the string cannot be found then it will be set to the Unknown value.
	*s = toSide[j]
	return nil
}

type OrderKind uint16

const (
	OrderKindUnknown OrderKind = iota
	OrderKindLimit
	OrderKindMarket
)

func (k OrderKind) String() string {
	return kindToString[k]
}

var kindToString = map[OrderKind]string{
	OrderKindUnknown: "Unknown",
	OrderKindLimit:   "Limit",
	OrderKindMarket:  "Market",
}

var toOrderKind = map[string]OrderKind{
	"Unknown": OrderKindUnknown,
	"Limit":   OrderKindLimit,
	"Market":  OrderKindMarket,
}

// MarshalJSON marshals the enum as a quoted json string
func (k OrderKind) MarshalJSON() ([]byte, error) {
	buffer := bytes.NewBufferString(`"`)
	buffer.WriteString(kindToString[k])
	buffer.WriteString(`"`)
	return buffer.Bytes(), nil
}

// UnmarshalJSON unmarshals a quoted json string to the enum value
func (k *OrderKind) UnmarshalJSON(b []byte) error {
	var j string
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	// If the string cannot be found then it will be set to the Unknown value.
	*k = toOrderKind[j]
	return nil
}
