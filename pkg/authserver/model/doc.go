// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package model holds the value types shared by the authorization engine:
// clients, resources, claims, tokens, persisted artifacts and the validated
// requests handed to the response generators.
package model
