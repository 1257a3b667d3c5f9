// Package authsdk is the client side of the platform identity service: the
// JSON wire types shared with the server, its error envelope, and a thin
// HTTP client.
//
// Public operations live on Client:
//
//	c := authsdk.NewClient("http://localhost:8080")
//	inv, err := c.VerifyInvitation(ctx, token)
//	user, err := c.AcceptInvitation(ctx, authsdk.AcceptInvitationRequest{Token: token, Password: pw})
//
// Authenticated operations live on Session, obtained by logging in:
//
//	s, err := c.Login(ctx, email, password)
//	var mfa *authsdk.MFARequiredError
//	if errors.As(err, &mfa) {
//		s, err = c.CompleteMFALogin(ctx, authsdk.MFALoginRequest{
//			UserID: mfa.UserID, MFAToken: mfa.MFAToken, Code: code,
//		})
//	}
//	status, err := s.MFAStatus(ctx)
//
// Every non-2xx response is returned as *OAuth2Error carrying the HTTP
// status, the error code and its description.
package authsdk
