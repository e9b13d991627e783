package middleware

// identity.go defines helper functions shared across middleware files.
// Currently it provides the userID extraction used by rate-limit key
// building. JWTAuth stores the subject claim under "user_id"; when no
// user is authenticated the caller is keyed as "anon".

import (
    "github.com/labstack/echo/v4"
)

// currentUserID returns the authenticated user's ID from context, or
// "anon" for guests. The claim is stored as a string or left untouched
// by JWTAuth, so only string values are trusted here.
func currentUserID(c echo.Context) string {
    if v := c.Get("user_id"); v != nil {
        if s, ok := v.(string); ok && s != "" { return s }
    }
    if v := c.Get("userID"); v != nil {
        if s, ok := v.(string); ok && s != "" { return s }
    }
    return "anon"
}
